package theme

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// CSVFile is the optional catalog override inside the data directory.
const CSVFile = "themes.csv"

// DefaultID names the theme used for unknown ids. It is a flat color so a
// card can always be rendered without any local assets.
const DefaultID = "default"

func builtinThemes() []Theme {
	return []Theme{
		{ID: DefaultID, Name: "Default", Background: "#191724", BackgroundKind: BackgroundColor, PrimaryText: "#ffffff", SecondaryText: "#a6a6a6"},
		{ID: "light", Name: "Light", Background: "/templates/light.png", BackgroundKind: BackgroundImage, PrimaryText: "#000000", SecondaryText: "#6a6a6a"},
		{ID: "dark", Name: "Dark", Background: "/templates/dark.png", BackgroundKind: BackgroundImage, PrimaryText: "#ffffff", SecondaryText: "#b3b3b3"},
		{ID: "nord", Name: "Nord", Background: "/templates/nord.png", BackgroundKind: BackgroundImage, PrimaryText: "#eceff4", SecondaryText: "#d8dee9"},
		{ID: "catppuccin", Name: "Catppuccin", Background: "/templates/catppuccin.png", BackgroundKind: BackgroundImage, PrimaryText: "#cdd6f4", SecondaryText: "#bac2de"},
		{ID: "gruvbox", Name: "Gruvbox", Background: "/templates/gruvbox.png", BackgroundKind: BackgroundImage, PrimaryText: "#ebdbb2", SecondaryText: "#a89984"},
		{ID: "everforest", Name: "Everforest", Background: "/templates/everforest.png", BackgroundKind: BackgroundImage, PrimaryText: "#d3c6aa", SecondaryText: "#9da9a0"},
		{ID: "rosepine", Name: "Rosé Pine", Background: "/templates/rosepine.png", BackgroundKind: BackgroundImage, PrimaryText: "#e0def4", SecondaryText: "#908caa"},
	}
}

// LoadCSV reads themes from a CSV file with the header
// id,name,background,background_type,text,secondary. Column order is free;
// unknown columns are ignored.
func LoadCSV(path string) ([]Theme, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	r := csv.NewReader(fp)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("csv %s has no header", path)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "background", "text"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv %s: missing column %q", path, required)
		}
	}

	get := func(row []string, name string) string {
		if idx, ok := cols[name]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	out := []Theme{}
	for i, row := range rows[1:] {
		t := Theme{
			ID:            get(row, "id"),
			Name:          get(row, "name"),
			Background:    get(row, "background"),
			PrimaryText:   get(row, "text"),
			SecondaryText: get(row, "secondary"),
		}
		if t.ID == "" {
			continue
		}
		if t.Name == "" {
			t.Name = t.ID
		}

		switch kind := BackgroundKind(strings.ToLower(get(row, "background_type"))); kind {
		case BackgroundColor, BackgroundImage:
			t.BackgroundKind = kind
		case "":
			t.BackgroundKind = inferKind(t.Background)
		default:
			return nil, fmt.Errorf("csv %s row %d: invalid background_type %q", path, i+2, kind)
		}
		if t.Background == "" || t.PrimaryText == "" {
			return nil, fmt.Errorf("csv %s row %d: background and text are required", path, i+2)
		}
		out = append(out, t)
	}
	return out, nil
}

// inferKind treats anything that looks like a path or URL as an image.
func inferKind(bg string) BackgroundKind {
	if strings.HasPrefix(bg, "/") || strings.HasPrefix(bg, "http://") ||
		strings.HasPrefix(bg, "https://") || strings.HasPrefix(bg, "data:") {
		return BackgroundImage
	}
	return BackgroundColor
}
