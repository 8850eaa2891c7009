package transform

// Column types carry the SQL type name used verbatim in DDL.
type ColumnType string

const (
	TypeText   ColumnType = "text"
	TypeBigInt ColumnType = "bigint"
	TypeDouble ColumnType = "double precision"
	TypeBool   ColumnType = "boolean"
	TypeDate   ColumnType = "date"
)

type Column struct {
	Name string
	Type ColumnType
}

// TableSpec declares one table of a city schema: its columns in load order,
// its primary key (empty for tables replaced wholesale on reload), and the
// source-header renames applied before column mapping.
type TableSpec struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Renames    map[string]string
}

func (t TableSpec) HasPrimaryKey() bool { return len(t.PrimaryKey) > 0 }

// Column returns the declared column with the given name.
func (t TableSpec) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t TableSpec) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

var listingRenames = map[string]string{
	"id":          "listing_id",
	"name":        "listing_name",
	"description": "listing_description",
}

var simpleListingRenames = map[string]string{
	"id":   "listing_id",
	"name": "listing_name",
}

// SelectedDetailColumns lists the curated subset of detail listing fields, by
// source header name, loaded when the selected-columns mode is on.
var SelectedDetailColumns = []string{
	"id", "host_id", "host_response_time", "host_response_rate", "host_acceptance_rate",
	"host_is_superhost", "host_neighbourhood", "host_listings_count", "host_total_listings_count",
	"neighbourhood_cleansed", "latitude", "longitude", "property_type", "room_type",
	"accommodates", "bathrooms", "bedrooms", "beds", "price", "minimum_nights",
	"maximum_nights", "minimum_nights_avg_ntm", "maximum_nights_avg_ntm",
	"availability_365", "availability_30", "availability_60", "availability_90",
	"number_of_reviews", "number_of_reviews_ltm", "number_of_reviews_l30d",
	"number_of_reviews_ly", "estimated_occupancy_l365d", "estimated_revenue_l365d",
	"first_review", "last_review", "review_scores_rating", "review_scores_accuracy",
	"review_scores_cleanliness", "review_scores_checkin", "review_scores_communication",
	"review_scores_location", "review_scores_value", "instant_bookable",
	"calculated_host_listings_count", "calculated_host_listings_count_entire_homes",
	"calculated_host_listings_count_private_rooms", "calculated_host_listings_count_shared_rooms",
	"reviews_per_month",
}

// HostColumns lists the host attribute fields carried on detail listings.
// Host tables are built from whichever of these a store's listings table has.
var HostColumns = []string{
	"host_id", "host_url", "host_name", "host_since", "host_location",
	"host_about", "host_response_time", "host_response_rate", "host_acceptance_rate",
	"host_is_superhost", "host_thumbnail_url", "host_picture_url", "host_neighbourhood",
	"host_listings_count", "host_total_listings_count", "host_verifications",
	"host_has_profile_pic", "host_identity_verified", "calculated_host_listings_count",
	"calculated_host_listings_count_entire_homes",
	"calculated_host_listings_count_private_rooms",
	"calculated_host_listings_count_shared_rooms",
}

// DetailListings is the full detail listings dataset in published column
// order, with the id/name/description renames applied.
var DetailListings = TableSpec{
	Name:       "listings",
	PrimaryKey: []string{"listing_id"},
	Renames:    listingRenames,
	Columns: []Column{
		{"listing_id", TypeBigInt},
		{"listing_url", TypeText},
		{"scrape_id", TypeBigInt},
		{"last_scraped", TypeDate},
		{"source", TypeText},
		{"listing_name", TypeText},
		{"listing_description", TypeText},
		{"neighborhood_overview", TypeText},
		{"picture_url", TypeText},
		{"host_id", TypeBigInt},
		{"host_url", TypeText},
		{"host_name", TypeText},
		{"host_since", TypeDate},
		{"host_location", TypeText},
		{"host_about", TypeText},
		{"host_response_time", TypeText},
		{"host_response_rate", TypeText},
		{"host_acceptance_rate", TypeText},
		{"host_is_superhost", TypeBool},
		{"host_thumbnail_url", TypeText},
		{"host_picture_url", TypeText},
		{"host_neighbourhood", TypeText},
		{"host_listings_count", TypeBigInt},
		{"host_total_listings_count", TypeBigInt},
		{"host_verifications", TypeText},
		{"host_has_profile_pic", TypeBool},
		{"host_identity_verified", TypeBool},
		{"neighbourhood", TypeText},
		{"neighbourhood_cleansed", TypeText},
		{"neighbourhood_group_cleansed", TypeText},
		{"latitude", TypeDouble},
		{"longitude", TypeDouble},
		{"property_type", TypeText},
		{"room_type", TypeText},
		{"accommodates", TypeBigInt},
		{"bathrooms", TypeDouble},
		{"bathrooms_text", TypeText},
		{"bedrooms", TypeBigInt},
		{"beds", TypeBigInt},
		{"amenities", TypeText},
		{"price", TypeDouble},
		{"minimum_nights", TypeBigInt},
		{"maximum_nights", TypeBigInt},
		{"minimum_minimum_nights", TypeBigInt},
		{"maximum_minimum_nights", TypeBigInt},
		{"minimum_maximum_nights", TypeBigInt},
		{"maximum_maximum_nights", TypeBigInt},
		{"minimum_nights_avg_ntm", TypeDouble},
		{"maximum_nights_avg_ntm", TypeDouble},
		{"calendar_updated", TypeText},
		{"has_availability", TypeBool},
		{"availability_30", TypeBigInt},
		{"availability_60", TypeBigInt},
		{"availability_90", TypeBigInt},
		{"availability_365", TypeBigInt},
		{"calendar_last_scraped", TypeDate},
		{"number_of_reviews", TypeBigInt},
		{"number_of_reviews_ltm", TypeBigInt},
		{"number_of_reviews_l30d", TypeBigInt},
		{"number_of_reviews_ly", TypeBigInt},
		{"estimated_occupancy_l365d", TypeBigInt},
		{"estimated_revenue_l365d", TypeDouble},
		{"first_review", TypeDate},
		{"last_review", TypeDate},
		{"review_scores_rating", TypeDouble},
		{"review_scores_accuracy", TypeDouble},
		{"review_scores_cleanliness", TypeDouble},
		{"review_scores_checkin", TypeDouble},
		{"review_scores_communication", TypeDouble},
		{"review_scores_location", TypeDouble},
		{"review_scores_value", TypeDouble},
		{"license", TypeText},
		{"instant_bookable", TypeBool},
		{"calculated_host_listings_count", TypeBigInt},
		{"calculated_host_listings_count_entire_homes", TypeBigInt},
		{"calculated_host_listings_count_private_rooms", TypeBigInt},
		{"calculated_host_listings_count_shared_rooms", TypeBigInt},
		{"reviews_per_month", TypeDouble},
	},
}

var DetailReviews = TableSpec{
	Name:       "reviews",
	PrimaryKey: []string{"id"},
	Columns: []Column{
		{"id", TypeBigInt},
		{"listing_id", TypeBigInt},
		{"date", TypeDate},
		{"reviewer_id", TypeBigInt},
		{"reviewer_name", TypeText},
		{"comments", TypeText},
	},
}

var Calendar = TableSpec{
	Name: "calendar",
	Columns: []Column{
		{"listing_id", TypeBigInt},
		{"date", TypeDate},
		{"available", TypeBool},
		{"price", TypeDouble},
		{"adjusted_price", TypeDouble},
		{"minimum_nights", TypeBigInt},
		{"maximum_nights", TypeBigInt},
	},
}

// SimpleListings is the visualisation-grade listings summary.
var SimpleListings = TableSpec{
	Name:       "listings",
	PrimaryKey: []string{"listing_id"},
	Renames:    simpleListingRenames,
	Columns: []Column{
		{"listing_id", TypeBigInt},
		{"listing_name", TypeText},
		{"host_id", TypeBigInt},
		{"host_name", TypeText},
		{"neighbourhood_group", TypeText},
		{"neighbourhood", TypeText},
		{"latitude", TypeDouble},
		{"longitude", TypeDouble},
		{"room_type", TypeText},
		{"price", TypeDouble},
		{"minimum_nights", TypeBigInt},
		{"number_of_reviews", TypeBigInt},
		{"last_review", TypeDate},
		{"reviews_per_month", TypeDouble},
		{"calculated_host_listings_count", TypeBigInt},
		{"availability_365", TypeBigInt},
		{"number_of_reviews_ltm", TypeBigInt},
		{"license", TypeText},
	},
}

var SimpleReviews = TableSpec{
	Name: "reviews",
	Columns: []Column{
		{"listing_id", TypeBigInt},
		{"date", TypeDate},
	},
}

var Neighbourhoods = TableSpec{
	Name: "neighbourhoods",
	Columns: []Column{
		{"neighbourhood_group", TypeText},
		{"neighbourhood", TypeText},
	},
}

// HostsSpec derives the hosts table for a store from its listings table:
// every declared host column the listings table carries, plus the computed
// per-city listing count.
func HostsSpec(listings TableSpec) TableSpec {
	spec := TableSpec{
		Name:       "hosts",
		PrimaryKey: []string{"host_id"},
	}
	for _, name := range HostColumns {
		if col, ok := listings.Column(name); ok {
			spec.Columns = append(spec.Columns, col)
		}
	}
	spec.Columns = append(spec.Columns, Column{"city_listings_count", TypeBigInt})
	return spec
}

// priceColumns get currency symbols and thousands separators stripped before
// the numeric parse.
var priceColumns = map[string]bool{
	"price":          true,
	"adjusted_price": true,
}
