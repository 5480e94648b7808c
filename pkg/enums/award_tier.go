package enums

// AwardTier is the certification grade stamped on a certificate.
type AwardTier string

const (
	AwardTierGrandGold AwardTier = "grand_gold"
	AwardTierGold      AwardTier = "gold"
	AwardTierSilver    AwardTier = "silver"
	AwardTierBronze    AwardTier = "bronze"
)

var validAwardTiers = []AwardTier{
	AwardTierGrandGold,
	AwardTierGold,
	AwardTierSilver,
	AwardTierBronze,
}

func (t AwardTier) String() string {
	return string(t)
}

func (t AwardTier) IsValid() bool {
	return oneOf(t, validAwardTiers)
}

// DisplayName is the label printed on certificates and e-mails.
func (t AwardTier) DisplayName() string {
	switch t {
	case AwardTierGrandGold:
		return "Grand Gold"
	case AwardTierGold:
		return "Gold"
	case AwardTierSilver:
		return "Silver"
	case AwardTierBronze:
		return "Bronze"
	}
	return string(t)
}

func ParseAwardTier(value string) (AwardTier, error) {
	return parse("award tier", value, validAwardTiers)
}
