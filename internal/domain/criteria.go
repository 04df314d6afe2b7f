package domain

// ListCriteria is the filter/pagination envelope shared by the entity list
// endpoints. Zero values mean "no filter". The marketplace client renders
// these into the upstream's query-parameter dialect
// (field.equals / field.contains / field.greaterThanOrEqual).
type ListCriteria struct {
	Query    string  // free text, matched against title
	Category string  // category.equals
	Status   string  // status.equals
	Location string  // location.contains
	PriceMin float64 // salePrice.greaterThanOrEqual
	PriceMax float64 // salePrice.lessThanOrEqual, 0 = unbounded
	Page     int     // 0-based
	Size     int     // defaults to 20 upstream
	Sort     string  // e.g. "createdAt,desc"
}
