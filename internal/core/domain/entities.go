package domain

import (
	"fmt"
	"time"
)

// Kind identifies what a map marker stands for.
type Kind string

const (
	KindSite Kind = "site"
	KindItem Kind = "item"
	// KindUser marks the "you are here" marker. It never appears in a result set.
	KindUser Kind = "user"
)

// Ref is the identity of a locatable entity: (kind, id).
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}

// DetailPath is the client route showing the entity.
func (r Ref) DetailPath() string {
	return fmt.Sprintf("/%s/%s", r.Kind, r.ID)
}

// Locatable is anything that can be drawn as a map marker.
type Locatable interface {
	Ref() Ref
	Title() string
	Position() GeoPosition
	// Distance returns the service-computed distance in km, if the
	// producing query carried a position.
	Distance() (float64, bool)
}

// Site is a point of interest (a bodega).
type Site struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	Location     GeoPosition `json:"location"`
	Description  string      `json:"description,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Hours        string      `json:"hours,omitempty"`
	Rating       float64     `json:"rating"`
	ReviewCount  int         `json:"review_count"`
	ItemCount    int         `json:"item_count"`
	IsVerified   bool        `json:"is_verified"`
	PrimaryPhoto string      `json:"primary_photo,omitempty"`
	DistanceKm   *float64    `json:"distance,omitempty"` // computed by the search service
	CreatedAt    time.Time   `json:"created_at,omitempty"`
}

func (s *Site) Ref() Ref              { return Ref{Kind: KindSite, ID: s.ID} }
func (s *Site) Title() string         { return s.Name }
func (s *Site) Position() GeoPosition { return s.Location }

func (s *Site) Distance() (float64, bool) {
	if s.DistanceKm == nil {
		return 0, false
	}
	return *s.DistanceKm, true
}

// Item is an entity attached to a site (a bodega cat). It is located at its site.
type Item struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	SiteID       string      `json:"site_id"`
	SiteName     string      `json:"site_name"`
	Address      string      `json:"address"`
	Location     GeoPosition `json:"location"`
	Description  string      `json:"description,omitempty"`
	Age          string      `json:"age,omitempty"`
	Breed        string      `json:"breed,omitempty"`
	Sex          string      `json:"sex,omitempty"`
	Personality  string      `json:"personality,omitempty"`
	Color        string      `json:"color,omitempty"`
	IsFriendly   bool        `json:"is_friendly"`
	Rating       float64     `json:"rating"`
	ReviewCount  int         `json:"review_count"`
	PrimaryPhoto string      `json:"primary_photo,omitempty"`
	DistanceKm   *float64    `json:"distance,omitempty"` // computed by the search service
	CreatedAt    time.Time   `json:"created_at,omitempty"`
}

func (i *Item) Ref() Ref              { return Ref{Kind: KindItem, ID: i.ID} }
func (i *Item) Title() string         { return i.Name }
func (i *Item) Position() GeoPosition { return i.Location }

func (i *Item) Distance() (float64, bool) {
	if i.DistanceKm == nil {
		return 0, false
	}
	return *i.DistanceKm, true
}

// Facets enumerates filter values offered to the user.
type Facets struct {
	Categories  []string    `json:"categories"`
	Tags        []string    `json:"tags"`
	RatingRange RatingStats `json:"rating_range"`
}

// RatingStats summarises item ratings.
type RatingStats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
}
