package entities

import (
	"fmt"
	"strconv"
)

// ConfidenceLevel is a display hint derived from the raw confidence
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Classification is the result of a leaf image classification
type Classification struct {
	Label           string          `json:"label"`
	Confidence      float64         `json:"confidence"`
	Advice          string          `json:"advice"`
	InitialMessage  string          `json:"initial_message,omitempty"`
	Description     string          `json:"description,omitempty"`
	Symptoms        []string        `json:"symptoms,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Level           ConfidenceLevel `json:"level,omitempty"`
	Language        string          `json:"language,omitempty"`
}

// LevelFor buckets a confidence value
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// DiseaseContext is a prior classification handed to the chat backend
type DiseaseContext struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// ContextFrom builds the chat context from a classification
func ContextFrom(c *Classification) *DiseaseContext {
	if c == nil || c.Label == "" {
		return nil
	}
	return &DiseaseContext{Disease: c.Label, Confidence: c.Confidence}
}

// String is the free-form form used by the voice endpoint
func (d *DiseaseContext) String() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%s (confidence %s)", d.Disease, strconv.FormatFloat(d.Confidence, 'f', 2, 64))
}

// DiseaseProfile is local reference material shown when the backend omits details
type DiseaseProfile struct {
	Description     string
	Symptoms        []string
	Recommendations []string
}

var diseaseProfiles = map[string]DiseaseProfile{
	"Cassava Mosaic Disease (CMD)": {
		Description: "A viral disease caused by cassava mosaic viruses that affects the leaves and reduces yield.",
		Symptoms:    []string{"Mosaic patterns on leaves", "Leaf distortion", "Stunted growth", "Reduced tuber size"},
		Recommendations: []string{
			"Remove and destroy infected plants",
			"Use virus-free planting material",
			"Control whitefly vectors",
			"Plant resistant varieties",
			"Practice crop rotation",
		},
	},
	"Cassava Brown Streak Disease (CBSD)": {
		Description: "A viral disease that causes brown streaks in the roots and can lead to complete crop failure.",
		Symptoms:    []string{"Brown streaks in roots", "Yellow leaf spots", "Root rot", "Reduced starch content"},
		Recommendations: []string{
			"Use certified disease-free cuttings",
			"Implement strict quarantine measures",
			"Control whitefly populations",
			"Harvest early before symptoms appear",
			"Plant tolerant varieties",
		},
	},
	"Cassava Bacterial Blight (CBB)": {
		Description: "A bacterial disease that causes wilting and cankers on stems and leaves.",
		Symptoms:    []string{"Water-soaked leaf spots", "Stem cankers", "Wilting", "Dieback"},
		Recommendations: []string{
			"Remove infected plant parts",
			"Avoid overhead irrigation",
			"Use disease-free planting material",
			"Apply copper-based fungicides",
			"Practice field sanitation",
		},
	},
	"Cassava Blight": {
		Description: "A fungal disease that causes leaf spots and can lead to significant yield loss.",
		Symptoms:    []string{"Brown or black spots on leaves", "Leaf yellowing", "Premature leaf drop", "Reduced photosynthesis"},
		Recommendations: []string{
			"Remove and destroy infected plant debris",
			"Improve air circulation around plants",
			"Apply fungicides as recommended",
			"Avoid overhead watering",
			"Plant resistant varieties when available",
		},
	},
	"Healthy Cassava": {
		Description: "Your cassava plants appear to be healthy with no visible disease symptoms.",
		Symptoms:    []string{"Normal green leaves", "Healthy stem growth", "Proper leaf development"},
		Recommendations: []string{
			"Continue current management practices",
			"Monitor regularly for early signs of disease",
			"Maintain good soil fertility",
			"Practice crop rotation",
			"Keep field clean and weed-free",
		},
	},
}

var genericProfile = DiseaseProfile{
	Description:     "Disease classification completed.",
	Symptoms:        []string{"Please consult with a local agricultural expert for detailed symptoms"},
	Recommendations: []string{"Contact your local agricultural extension service for specific recommendations"},
}

// ProfileFor returns the local profile for a label, or the generic one
func ProfileFor(label string) DiseaseProfile {
	if p, ok := diseaseProfiles[label]; ok {
		return p
	}
	return genericProfile
}

// Enrich fills description, symptoms and recommendations the backend left out
func (c *Classification) Enrich() {
	profile := ProfileFor(c.Label)
	if c.Description == "" {
		c.Description = profile.Description
	}
	if len(c.Symptoms) == 0 {
		c.Symptoms = append([]string(nil), profile.Symptoms...)
	}
	if len(c.Recommendations) == 0 {
		c.Recommendations = append([]string(nil), profile.Recommendations...)
	}
	c.Level = LevelFor(c.Confidence)
}
