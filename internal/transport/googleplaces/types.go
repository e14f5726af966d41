package googleplaces

// Wire types for the Places Web Service JSON API. Only the fields the
// transform consumes are declared.

type searchResponse struct {
	Results      []placeResult `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

type detailsResponse struct {
	Result       placeResult `json:"result"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

type autocompleteResponse struct {
	Predictions  []placePrediction `json:"predictions"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

type placeResult struct {
	PlaceID              string            `json:"place_id"`
	Name                 string            `json:"name"`
	Geometry             *geometry         `json:"geometry,omitempty"`
	Types                []string          `json:"types,omitempty"`
	Rating               *float64          `json:"rating,omitempty"`
	UserRatingsTotal     *int              `json:"user_ratings_total,omitempty"`
	PriceLevel           *int              `json:"price_level,omitempty"`
	Vicinity             string            `json:"vicinity,omitempty"`
	FormattedAddress     string            `json:"formatted_address,omitempty"`
	FormattedPhoneNumber string            `json:"formatted_phone_number,omitempty"`
	Website              string            `json:"website,omitempty"`
	EditorialSummary     *editorialSummary `json:"editorial_summary,omitempty"`
	OpeningHours         *openingHours     `json:"opening_hours,omitempty"`
	Photos               []photo           `json:"photos,omitempty"`
}

type geometry struct {
	Location location `json:"location"`
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type editorialSummary struct {
	Overview string `json:"overview"`
}

type openingHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

type photo struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type placePrediction struct {
	PlaceID              string                `json:"place_id"`
	Description          string                `json:"description"`
	StructuredFormatting *structuredFormatting `json:"structured_formatting,omitempty"`
	Terms                []term                `json:"terms,omitempty"`
	Types                []string              `json:"types,omitempty"`
}

type structuredFormatting struct {
	MainText      string `json:"main_text"`
	SecondaryText string `json:"secondary_text"`
}

type term struct {
	Value string `json:"value"`
}
