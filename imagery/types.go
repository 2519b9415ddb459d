// Package imagery finds, scores, synthesizes and embeds one illustration per
// slide of a markdown deck.
package imagery

import "image"

// Candidate is a downloaded image that may illustrate a slide.
type Candidate struct {
	SlideTitle string
	Query      string
	URL        string
	Width      int
	Height     int
	// Resolution is Width*Height and always positive for a returned candidate.
	Resolution int
	Format     string
	Image      image.Image
}

// ScoredCandidate is a Candidate with its similarity to the slide text.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// SlideQuery pairs a slide title with the search query advised for it.
type SlideQuery struct {
	SlideTitle string `json:"slide_title"`
	Query      string `json:"query"`
}

// SlideImageMap maps slide titles to local image paths.
type SlideImageMap map[string]string
