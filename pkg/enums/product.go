package enums

// ProductStatus tracks a submission through review and certification.
type ProductStatus string

const (
	ProductStatusSubmitted   ProductStatus = "submitted"
	ProductStatusUnderReview ProductStatus = "under_review"
	ProductStatusScored      ProductStatus = "scored"
	ProductStatusCertified   ProductStatus = "certified"
	ProductStatusRejected    ProductStatus = "rejected"
)

var validProductStatuses = []ProductStatus{
	ProductStatusSubmitted,
	ProductStatusUnderReview,
	ProductStatusScored,
	ProductStatusCertified,
	ProductStatusRejected,
}

// String implements fmt.Stringer.
func (s ProductStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductStatus.
func (s ProductStatus) IsValid() bool {
	return oneOf(s, validProductStatuses)
}

// ParseProductStatus converts raw input into a ProductStatus.
func ParseProductStatus(value string) (ProductStatus, error) {
	return parse("product status", value, validProductStatuses)
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s ProductStatus) CanTransitionTo(next ProductStatus) bool {
	switch s {
	case ProductStatusSubmitted:
		return next == ProductStatusUnderReview || next == ProductStatusScored || next == ProductStatusRejected
	case ProductStatusUnderReview:
		return next == ProductStatusScored || next == ProductStatusRejected
	case ProductStatusScored:
		return next == ProductStatusScored || next == ProductStatusCertified ||
			next == ProductStatusRejected || next == ProductStatusUnderReview
	case ProductStatusCertified:
		return next == ProductStatusScored
	case ProductStatusRejected:
		return next == ProductStatusUnderReview || next == ProductStatusSubmitted
	}
	return false
}

// EditableByProducer reports whether the owner may still change product details.
func (s ProductStatus) EditableByProducer() bool {
	switch s {
	case ProductStatusSubmitted, ProductStatusRejected:
		return true
	case ProductStatusUnderReview, ProductStatusScored, ProductStatusCertified:
		return false
	}
	return false
}
