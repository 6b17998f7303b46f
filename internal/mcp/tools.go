package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/sitepass/internal/cli"
)

// SiteListInput represents input for site_list tool.
type SiteListInput struct {
	Pattern        string `json:"pattern,omitempty"`
	CustomizedOnly bool   `json:"customized_only,omitempty"`
}

// SiteListOutput represents output for site_list tool.
type SiteListOutput struct {
	Sites []SiteInfo `json:"sites"`
}

// SiteInfo represents metadata for a saved site (no password).
type SiteInfo struct {
	Site       string `json:"site"`
	Customized bool   `json:"customized"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

// SiteSettingsInput represents input for site_settings tool.
type SiteSettingsInput struct {
	Site string `json:"site"`
}

// SiteSettingsOutput represents output for site_settings tool.
type SiteSettingsOutput struct {
	Site               string `json:"site"`
	Saved              bool   `json:"saved"`
	Customized         bool   `json:"customized"`
	RequirePunctuation bool   `json:"requirePunctuation"`
	RestrictSpecial    bool   `json:"restrictSpecial"`
	HashWordSize       int    `json:"hashWordSize"`
	Bangify            bool   `json:"bangify"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

// SitePasswordMaskedInput represents input for site_password_masked tool.
type SitePasswordMaskedInput struct {
	Site string `json:"site"`
}

// SitePasswordMaskedOutput represents output for site_password_masked tool.
type SitePasswordMaskedOutput struct {
	Site           string `json:"site"`
	MaskedPassword string `json:"masked_password"`
	PasswordLength int    `json:"password_length"`
}

// SiteBreachCheckInput represents input for site_breach_check tool.
type SiteBreachCheckInput struct {
	Site string `json:"site"`
}

// SiteBreachCheckOutput represents output for site_breach_check tool.
type SiteBreachCheckOutput struct {
	Site    string `json:"site"`
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

var errSiteRequired = errors.New("site is required")

// handleSiteList handles the site_list tool call.
func (s *Server) handleSiteList(_ context.Context, _ *mcp.CallToolRequest, input SiteListInput) (*mcp.CallToolResult, SiteListOutput, error) {
	sites := s.session.DataList()
	if input.Pattern != "" {
		matched, err := cli.ExpandPattern(input.Pattern, sites)
		if err != nil {
			if errors.Is(err, cli.ErrNoMatch) {
				return nil, SiteListOutput{Sites: []SiteInfo{}}, nil
			}
			return nil, SiteListOutput{}, err
		}
		sites = matched
	}

	output := SiteListOutput{Sites: make([]SiteInfo, 0, len(sites))}
	for _, site := range sites {
		view := s.session.Site(site)
		if !view.Saved || (input.CustomizedOnly && !view.Customized) {
			continue
		}
		output.Sites = append(output.Sites, SiteInfo{
			Site:       view.Tag,
			Customized: view.Customized,
			UpdatedAt:  formatTime(view.Updated),
		})
	}
	return nil, output, nil
}

// handleSiteSettings handles the site_settings tool call.
func (s *Server) handleSiteSettings(_ context.Context, _ *mcp.CallToolRequest, input SiteSettingsInput) (*mcp.CallToolResult, SiteSettingsOutput, error) {
	if strings.TrimSpace(input.Site) == "" {
		return nil, SiteSettingsOutput{}, errSiteRequired
	}
	view := s.session.Site(input.Site)
	return nil, SiteSettingsOutput{
		Site:               view.Tag,
		Saved:              view.Saved,
		Customized:         view.Customized,
		RequirePunctuation: view.Settings.RequirePunctuation,
		RestrictSpecial:    view.Settings.RestrictSpecial,
		HashWordSize:       view.Settings.HashWordSize,
		Bangify:            view.Settings.Bangify,
		UpdatedAt:          formatTime(view.Updated),
	}, nil
}

// handleSitePasswordMasked handles the site_password_masked tool call.
func (s *Server) handleSitePasswordMasked(ctx context.Context, _ *mcp.CallToolRequest, input SitePasswordMaskedInput) (*mcp.CallToolResult, SitePasswordMaskedOutput, error) {
	hash, site, err := s.generateSaved(ctx, input.Site)
	if err != nil {
		return nil, SitePasswordMaskedOutput{}, err
	}
	return nil, SitePasswordMaskedOutput{
		Site:           site,
		MaskedPassword: maskValue(hash),
		PasswordLength: len(hash),
	}, nil
}

// handleSiteBreachCheck handles the site_breach_check tool call.
func (s *Server) handleSiteBreachCheck(ctx context.Context, _ *mcp.CallToolRequest, input SiteBreachCheckInput) (*mcp.CallToolResult, SiteBreachCheckOutput, error) {
	if strings.TrimSpace(input.Site) == "" {
		return nil, SiteBreachCheckOutput{}, errSiteRequired
	}
	if !s.session.HasMasterKey() {
		return nil, SiteBreachCheckOutput{}, fmt.Errorf("no master key: set %s", MasterKeyEnv)
	}
	out, err := s.session.Inspect(ctx, input.Site)
	if err != nil {
		return nil, SiteBreachCheckOutput{}, err
	}
	return nil, SiteBreachCheckOutput{
		Site:    out.Site,
		Status:  out.Breach.Status.String(),
		Count:   out.Breach.Count,
		Message: out.Breach.Message,
	}, nil
}

func (s *Server) generateSaved(ctx context.Context, site string) (hash, tag string, err error) {
	if strings.TrimSpace(site) == "" {
		return "", "", errSiteRequired
	}
	if !s.session.HasMasterKey() {
		return "", "", fmt.Errorf("no master key: set %s", MasterKeyEnv)
	}
	view := s.session.Site(site)
	if !view.Saved {
		return "", "", fmt.Errorf("site %q is not saved", view.Tag)
	}
	out, err := s.session.Preview(ctx, view.Tag, view.Settings)
	if err != nil {
		return "", "", err
	}
	return out, view.Tag, nil
}

// maskValue masks a password.
// | Length  | Format          | Example   |
// |---------|-----------------|-----------|
// | 1-4     | All *           | ****      |
// | 5-8     | Show last 2     | ******XY  |
// | 9+      | Show last 4     | ****WXYZ  |
func maskValue(value string) string {
	length := len(value)
	switch {
	case length == 0:
		return ""
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + value[length-2:]
	default:
		return strings.Repeat("*", length-4) + value[length-4:]
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
