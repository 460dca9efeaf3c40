package domain

import "time"

// PetStatus represents adoption lifecycle states for a pet.
type PetStatus string

const (
	PetStatusAvailable PetStatus = "AVAILABLE"
	PetStatusFostered  PetStatus = "FOSTERED"
	PetStatusAdopted   PetStatus = "ADOPTED"
)

// Pet is the summary record returned by the pet listing endpoint.
type Pet struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed,omitempty"`
	AgeMonths int       `json:"age_months"`
	ShelterID int64     `json:"shelter_id"`
	Status    PetStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PetPage is one page of the pet listing.
type PetPage struct {
	Items    []Pet `json:"items"`
	Total    int   `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}
