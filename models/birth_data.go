package models

// BirthData is what a user submits to request an on-demand horoscope.
// Values are passed to the prompt verbatim.
type BirthData struct {
	BirthDate  string `json:"birthDate"`
	BirthTime  string `json:"birthTime"`
	BirthPlace string `json:"birthPlace"`
}

// Complete reports whether all three fields are present.
func (b BirthData) Complete() bool {
	return b.BirthDate != "" && b.BirthTime != "" && b.BirthPlace != ""
}
