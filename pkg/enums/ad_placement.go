package enums

// AdPlacement names a sponsorship slot.
type AdPlacement string

const (
	AdPlacementHome     AdPlacement = "home"
	AdPlacementCategory AdPlacement = "category"
)

// AdPlacements is also the order in which placements are activated.
var AdPlacements = []AdPlacement{AdPlacementHome, AdPlacementCategory}

func (p AdPlacement) String() string { return string(p) }

func (p AdPlacement) IsValid() bool { return member(AdPlacements, p) }

func ParseAdPlacement(raw string) (AdPlacement, error) {
	return parse(AdPlacements, raw, "ad placement")
}

// SponsorshipFactType is the type column of the sponsorship facts table.
type SponsorshipFactType string

const (
	SponsorshipFactActivated SponsorshipFactType = "activated"
	SponsorshipFactStopped   SponsorshipFactType = "stopped"
)

var sponsorshipFactTypes = []SponsorshipFactType{SponsorshipFactActivated, SponsorshipFactStopped}

func (s SponsorshipFactType) IsValid() bool { return member(sponsorshipFactTypes, s) }
