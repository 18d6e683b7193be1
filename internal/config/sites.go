package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed sites.json
var defaultSitesJSON []byte

//go:embed sites.schema.json
var sitesSchemaJSON []byte

// SiteDefinition describes one target job board: where its listing pages
// live and how a scraper must authenticate against it.
type SiteDefinition struct {
	Name        string   `json:"name"`
	Auth        string   `json:"auth"` // "none" or "browser"
	BoardURLs   []string `json:"board_urls"`
	LoginURL    string   `json:"login_url,omitempty"`
	AllowTokens []string `json:"allow_tokens,omitempty"`
}

// LoadSites returns the site definitions, from the file at path when given,
// otherwise the embedded defaults. The definitions are validated against the
// embedded JSON schema either way.
func LoadSites(path string) ([]SiteDefinition, error) {
	data := defaultSitesJSON
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read sites config %s: %w", path, err)
		}
	}

	if err := validateSites(data); err != nil {
		return nil, err
	}

	var sites []SiteDefinition
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("failed to parse sites config: %w", err)
	}

	names := make(map[string]struct{}, len(sites))
	for _, site := range sites {
		if _, dup := names[site.Name]; dup {
			return nil, fmt.Errorf("duplicate site name %q in sites config", site.Name)
		}
		names[site.Name] = struct{}{}
	}
	return sites, nil
}

func validateSites(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(sitesSchemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate sites config: %w", err)
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	sort.Strings(messages)
	return fmt.Errorf("invalid sites config: %s", strings.Join(messages, "; "))
}
