package index

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/placedex/internal/domain/dedupe"
	"github.com/kailas-cloud/placedex/internal/domain/poi"
	"github.com/kailas-cloud/placedex/internal/domain/prediction"
)

// Hash field names shared between the index schema and the DTO mapping.
const (
	fieldName       = "name"
	fieldDesc       = "description"
	fieldCategories = "categories"
	fieldLocation   = "location"
	fieldRating     = "rating_avg"
	fieldReviews    = "rating_count"
	fieldPopularity = "popularity"
	fieldDedupeKey  = "dedupe_key"
	fieldMainText   = "main_text"
	fieldClicks     = "click_count"
	fieldStatus     = "status"
	fieldDoc        = "doc"
)

// poiToHash flattens a POI into hash fields: indexed scalars plus a JSON
// document for lossless reconstruction on the read path.
func poiToHash(p *poi.POI) (map[string]string, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling poi %s: %w", p.ID, err)
	}
	return map[string]string{
		fieldName:       dedupe.NormalizeName(p.Name),
		fieldDesc:       p.Description,
		fieldCategories: strings.Join(p.Categories, ","),
		// GEO fields take "lng,lat" order.
		fieldLocation:   fmt.Sprintf("%f,%f", p.Location.Lng, p.Location.Lat),
		fieldRating:     strconv.FormatFloat(p.Rating.Average, 'f', -1, 64),
		fieldReviews:    strconv.Itoa(p.Rating.Count),
		fieldPopularity: strconv.FormatFloat(p.PopularityScore, 'f', -1, 64),
		fieldDedupeKey:  p.DedupeKey,
		fieldDoc:        string(doc),
	}, nil
}

// poiFromFields reconstructs a POI from the stored JSON document.
func poiFromFields(fields map[string]string) (poi.POI, error) {
	doc, ok := fields[fieldDoc]
	if !ok {
		return poi.POI{}, fmt.Errorf("index entry missing %s field", fieldDoc)
	}
	var p poi.POI
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return poi.POI{}, fmt.Errorf("decoding indexed poi: %w", err)
	}
	return p, nil
}

// predictionToHash flattens a prediction into hash fields.
func predictionToHash(p *prediction.Prediction) (map[string]string, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling prediction %s: %w", p.PlaceID, err)
	}
	return map[string]string{
		fieldMainText: p.MainTextNormalized,
		fieldClicks:   strconv.FormatInt(p.ClickCount, 10),
		fieldStatus:   string(p.Status),
		fieldDoc:      string(doc),
	}, nil
}

// predictionFromFields reconstructs a prediction from the stored JSON document.
func predictionFromFields(fields map[string]string) (prediction.Prediction, error) {
	doc, ok := fields[fieldDoc]
	if !ok {
		return prediction.Prediction{}, fmt.Errorf("index entry missing %s field", fieldDoc)
	}
	var p prediction.Prediction
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return prediction.Prediction{}, fmt.Errorf("decoding indexed prediction: %w", err)
	}
	return p, nil
}
