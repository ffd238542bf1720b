package model

import "time"

// Contributor is an aggregate derived from commit rows, keyed by author login.
// HasPopularRepo and IsCore are computed at read time from the current star ranking.
type Contributor struct {
	Login          string
	AvatarURL      string
	Contributions  int
	Last30d        int
	Repos          []string
	HasPopularRepo bool
	IsCore         bool
	Profile        *Profile
}

// Profile is user-owned data attached to a contributor login.
type Profile struct {
	Login           string
	Bio             string
	TwitterUsername string
	Website         string
	NanoAddress     string
	GHSponsors      bool
	PatreonURL      string
	GoalTitle       string
	GoalAmount      int
	GoalNanoAddress string
	GoalWebsite     string
	GoalDescription string
	UpdatedAt       time.Time
}

// ProfileUpdate carries a partial profile change. Nil fields are left unchanged.
type ProfileUpdate struct {
	Bio             *string
	TwitterUsername *string
	Website         *string
	NanoAddress     *string
	GHSponsors      *bool
	PatreonURL      *string
	GoalTitle       *string
	GoalAmount      *int
	GoalNanoAddress *string
	GoalWebsite     *string
	GoalDescription *string
}

// Apply returns p with every non-nil field of u applied.
func (u ProfileUpdate) Apply(p Profile) Profile {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&p.Bio, u.Bio)
	setString(&p.TwitterUsername, u.TwitterUsername)
	setString(&p.Website, u.Website)
	setString(&p.NanoAddress, u.NanoAddress)
	setString(&p.PatreonURL, u.PatreonURL)
	setString(&p.GoalTitle, u.GoalTitle)
	setString(&p.GoalNanoAddress, u.GoalNanoAddress)
	setString(&p.GoalWebsite, u.GoalWebsite)
	setString(&p.GoalDescription, u.GoalDescription)

	if u.GHSponsors != nil {
		p.GHSponsors = *u.GHSponsors
	}
	if u.GoalAmount != nil {
		p.GoalAmount = *u.GoalAmount
	}

	return p
}
