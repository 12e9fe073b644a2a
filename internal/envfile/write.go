package envfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Section groups keys under a comment header when writing.
type Section struct {
	Title string
	Keys  []string
}

// Schema describes the layout of a written config file.
type Schema struct {
	Sections []Section
	// IntDefaults fills numeric keys that would otherwise be written empty.
	IntDefaults map[string]string
}

// extraSection collects keys the schema does not list.
const extraSection = "Additional"

// DefaultSchema is the layout the desktop shell writes.
var DefaultSchema = Schema{
	Sections: []Section{
		{Title: "Slack", Keys: []string{"SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "SLACK_SIGNING_SECRET", "SLACK_TEAM_ID"}},
		{Title: "Bot", Keys: []string{"BOT_NAME", "BOT_EMAIL", "BOT_ORGANIZATION", "BOT_TEAM", "BOT_AUTHORIZED_USERS_EN", "BOT_AUTHORIZED_USERS_KR", "BOT_ROLE", "FILESYSTEM_BASE_DIR"}},
		{Title: "Models", Keys: []string{"MODEL_FOR_SIMPLE", "MODEL_FOR_MODERATE", "MODEL_FOR_COMPLEX"}},
		{Title: "MCP - Perplexity", Keys: []string{"PERPLEXITY_ENABLED", "PERPLEXITY_API_KEY"}},
		{Title: "MCP - DeepL", Keys: []string{"DEEPL_ENABLED", "DEEPL_API_KEY"}},
		{Title: "MCP - GitHub", Keys: []string{"GITHUB_ENABLED", "GITHUB_PERSONAL_ACCESS_TOKEN"}},
		{Title: "MCP - GitLab", Keys: []string{"GITLAB_ENABLED", "GITLAB_API_URL", "GITLAB_PERSONAL_ACCESS_TOKEN"}},
		{Title: "MCP - Microsoft 365 (Lokka)", Keys: []string{"MS365_ENABLED", "MS365_CLIENT_ID", "MS365_TENANT_ID"}},
		{Title: "MCP - Atlassian Rovo", Keys: []string{"ATLASSIAN_ENABLED", "ATLASSIAN_CONFLUENCE_SITE_URL", "ATLASSIAN_JIRA_SITE_URL", "ATLASSIAN_CONFLUENCE_DEFAULT_PAGE_ID"}},
		{Title: "MCP - Tableau", Keys: []string{"TABLEAU_ENABLED", "TABLEAU_SERVER", "TABLEAU_SITE_NAME", "TABLEAU_PAT_NAME", "TABLEAU_PAT_VALUE"}},
		{Title: "MCP - X (Twitter)", Keys: []string{"X_ENABLED", "X_API_KEY", "X_API_SECRET", "X_ACCESS_TOKEN", "X_ACCESS_TOKEN_SECRET", "X_OAUTH2_CLIENT_ID", "X_OAUTH2_CLIENT_SECRET"}},
		{Title: "MCP - Clova Speech", Keys: []string{"CLOVA_ENABLED", "CLOVA_INVOKE_URL", "CLOVA_SECRET_KEY"}},
		{Title: "MCP - Remote MCP", Keys: []string{"REMOTE_MCP_SERVERS"}},
		{Title: "Computer Use", Keys: []string{"CHROME_ENABLED", "CHROME_ALWAYS_PROFILE_SETUP"}},
		{Title: "Web interface / voice channel", Keys: []string{"WEB_INTERFACE_ENABLED", "WEB_INTERFACE_AUTH_PROVIDER", "WEB_INTERFACE_URL", "WEB_SLACK_CLIENT_ID", "WEB_SLACK_CLIENT_SECRET", "WEB_MS365_CLIENT_ID", "WEB_MS365_CLIENT_SECRET", "WEB_MS365_TENANT_ID"}},
		{Title: "Watch channel - Outlook", Keys: []string{"OUTLOOK_CHECK_ENABLED", "OUTLOOK_CHECK_INTERVAL"}},
		{Title: "Watch channel - Confluence", Keys: []string{"CONFLUENCE_CHECK_ENABLED", "CONFLUENCE_CHECK_INTERVAL", "CONFLUENCE_CHECK_HOURS"}},
		{Title: "Watch channel - Jira", Keys: []string{"JIRA_CHECK_ENABLED", "JIRA_CHECK_INTERVAL"}},
		{Title: "Proactive suggestions", Keys: []string{"DYNAMIC_SUGGESTER_ENABLED", "DYNAMIC_SUGGESTER_INTERVAL"}},
		{Title: "Debug", Keys: []string{"DEBUG_SLACK_MESSAGES_ENABLED"}},
	},
	IntDefaults: map[string]string{
		"OUTLOOK_CHECK_INTERVAL":     "5",
		"CONFLUENCE_CHECK_INTERVAL":  "60",
		"CONFLUENCE_CHECK_HOURS":     "1",
		"JIRA_CHECK_INTERVAL":        "30",
		"DYNAMIC_SUGGESTER_INTERVAL": "15",
	},
}

// Write renders values in schema order. Keys missing from values are
// written empty unless the schema supplies an integer default; keys absent
// from the schema follow in a trailing section, sorted.
func Write(w io.Writer, values map[string]string, schema Schema) error {
	bw := bufio.NewWriter(w)
	known := make(map[string]bool)
	for _, section := range schema.Sections {
		writeHeader(bw, section.Title)
		for _, key := range section.Keys {
			known[key] = true
			value := values[key]
			if value == "" {
				value = schema.IntDefaults[key]
			}
			writePair(bw, key, value)
		}
		bw.WriteString("\n")
	}

	var extra []string
	for key := range values {
		if !known[key] && key != "" {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		writeHeader(bw, extraSection)
		for _, key := range extra {
			writePair(bw, key, values[key])
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// Save writes values to path, creating the parent directory when needed.
func Save(path string, values map[string]string, schema Schema) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	if err := Write(f, values, schema); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}

func writeHeader(w *bufio.Writer, title string) {
	fmt.Fprintf(w, "# ============== %s ==============\n", title)
}

func writePair(w *bufio.Writer, key, value string) {
	fmt.Fprintf(w, "%s=\"%s\"\n", key, Escape(value))
}
