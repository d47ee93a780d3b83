package theme

// BackgroundKind says how Theme.Background is interpreted.
type BackgroundKind string

const (
	BackgroundColor BackgroundKind = "color"
	BackgroundImage BackgroundKind = "image"
)

// Theme is a read-only catalog entry.
type Theme struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Background is a CSS color for BackgroundColor or an image ref for
	// BackgroundImage.
	Background     string         `json:"background"`
	BackgroundKind BackgroundKind `json:"backgroundType"`
	PrimaryText    string         `json:"text"`
	SecondaryText  string         `json:"secondary,omitempty"`
}

// Secondary returns SecondaryText, falling back to PrimaryText.
func (t Theme) Secondary() string {
	if t.SecondaryText != "" {
		return t.SecondaryText
	}
	return t.PrimaryText
}
