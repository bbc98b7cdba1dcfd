package clientcli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Formatter formats results for output.
type Formatter interface {
	FormatUpload(w io.Writer, results []UploadResult) error
	FormatInfo(w io.Writer, info *ShareInfo) error
	FormatDownload(w io.Writer, result *DownloadResult) error
	FormatStats(w io.Writer, stats *Stats) error
	FormatError(w io.Writer, err error) error
	FormatProfileList(w io.Writer, profiles []Profile, defaultName string) error
	FormatProfileShow(w io.Writer, profile Profile, isDefault bool) error
}

// Output formats accepted by NewFormatter.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// NewFormatter returns the formatter for the given output format.
// Anything but "json" gets the table formatter.
func NewFormatter(output string, quiet bool) Formatter {
	if output == OutputJSON {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
	// Now anchors relative times; time.Now when nil.
	Now func() time.Time
}

func (f *HumanFormatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// FormatUpload prints the link of each new share. In quiet mode only the
// links are printed, one per line.
func (f *HumanFormatter) FormatUpload(w io.Writer, results []UploadResult) error {
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "Error: %s - %v\n", r.LocalPath, r.Err)
			continue
		}
		if f.Quiet {
			_, _ = fmt.Fprintln(w, r.URL)
			continue
		}
		_, _ = fmt.Fprintf(w, "Shared: %s (%s)\n", r.Name, humanize.IBytes(uint64(r.Size)))
		_, _ = fmt.Fprintf(w, "  URL:       %s\n", r.URL)
		_, _ = fmt.Fprintf(w, "  Expires:   %s\n", f.expires(r.ExpiresAt))
		_, _ = fmt.Fprintf(w, "  Downloads: %s\n", limitString(r.MaxDownloads))
		if r.HasPassword {
			_, _ = fmt.Fprintln(w, "  Password:  required")
		}
	}
	return nil
}

// FormatInfo formats share metadata as human-readable text.
func (f *HumanFormatter) FormatInfo(w io.Writer, info *ShareInfo) error {
	_, _ = fmt.Fprintf(w, "ID:           %s\n", info.ID)
	_, _ = fmt.Fprintf(w, "Name:         %s\n", info.Name)
	_, _ = fmt.Fprintf(w, "Size:         %s\n", humanize.IBytes(uint64(info.Size)))
	_, _ = fmt.Fprintf(w, "Content-Type: %s\n", info.ContentType)
	_, _ = fmt.Fprintf(w, "Created:      %s\n", info.CreatedAt.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(w, "Expires:      %s\n", f.expires(info.ExpiresAt))
	_, _ = fmt.Fprintf(w, "Downloads:    %d of %s\n", info.CurrentDownloads, limitString(info.MaxDownloads))
	_, _ = fmt.Fprintf(w, "Password:     %s\n", passwordString(info.HasPassword))
	return nil
}

// FormatDownload formats download result as human-readable text.
func (f *HumanFormatter) FormatDownload(w io.Writer, result *DownloadResult) error {
	if f.Quiet {
		return nil
	}
	if result.LocalPath == "-" {
		_, _ = fmt.Fprintf(w, "Downloaded: %s (%s)\n", result.Name, humanize.IBytes(uint64(max(result.Size, 0))))
	} else {
		_, _ = fmt.Fprintf(w, "Downloaded: %s -> %s (%s)\n", result.Name, result.LocalPath, humanize.IBytes(uint64(max(result.Size, 0))))
	}
	if result.Remaining != nil {
		_, _ = fmt.Fprintf(w, "  Downloads remaining: %d\n", *result.Remaining)
	}
	return nil
}

// FormatStats formats aggregate statistics as human-readable text.
func (f *HumanFormatter) FormatStats(w io.Writer, stats *Stats) error {
	_, _ = fmt.Fprintf(w, "Active shares:   %s\n", humanize.Comma(stats.ActiveShares))
	_, _ = fmt.Fprintf(w, "Total downloads: %s\n", humanize.Comma(stats.TotalDownloads))
	_, _ = fmt.Fprintf(w, "Shares today:    %s\n", humanize.Comma(stats.SharesToday))
	_, _ = fmt.Fprintf(w, "Average size:    %s\n", humanize.IBytes(uint64(stats.AvgSizeBytes)))
	_, _ = fmt.Fprintf(w, "Stored:          %s\n", humanize.IBytes(uint64(stats.StoredBytes)))
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// FormatProfileList formats a list of profiles as human-readable text.
func (f *HumanFormatter) FormatProfileList(w io.Writer, profiles []Profile, defaultName string) error {
	maxNameLen := 4 // "NAME"
	for i := range profiles {
		if len(profiles[i].Name) > maxNameLen {
			maxNameLen = len(profiles[i].Name)
		}
	}
	if maxNameLen > 20 {
		maxNameLen = 20
	}

	_, _ = fmt.Fprintf(w, "  %-*s  %s\n", maxNameLen, "NAME", "ENDPOINT")
	_, _ = fmt.Fprintf(w, "  %s  %s\n", strings.Repeat("-", maxNameLen), strings.Repeat("-", 30))

	for i := range profiles {
		p := &profiles[i]
		marker := " "
		if p.Name == defaultName {
			marker = "*"
		}

		name := p.Name
		if len(name) > maxNameLen {
			name = name[:maxNameLen-3] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s %-*s  %s\n", marker, maxNameLen, name, p.Endpoint)
	}

	return nil
}

// FormatProfileShow formats a single profile as human-readable text.
func (f *HumanFormatter) FormatProfileShow(w io.Writer, profile Profile, isDefault bool) error {
	_, _ = fmt.Fprintf(w, "Name:     %s", profile.Name)
	if isDefault {
		_, _ = fmt.Fprintf(w, " (default)")
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Endpoint: %s\n", profile.Endpoint)
	return nil
}

func (f *HumanFormatter) expires(at time.Time) string {
	return at.Local().Format(time.DateTime) + " (" + humanize.RelTime(at, f.now(), "ago", "from now") + ")"
}

func limitString(limit *int) string {
	if limit == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d", *limit)
}

func passwordString(b bool) string {
	if b {
		return "required"
	}
	return "none"
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatUpload formats upload results as JSON.
func (f *JSONFormatter) FormatUpload(w io.Writer, results []UploadResult) error {
	// Convert errors to strings for JSON output
	type jsonResult struct {
		UploadResult
		Error string `json:"error,omitempty"`
	}

	output := make([]jsonResult, len(results))
	for i := range results {
		output[i] = jsonResult{UploadResult: results[i]}
		if results[i].Err != nil {
			output[i].Error = results[i].Err.Error()
		}
	}

	return writeJSON(w, output)
}

// FormatInfo formats share metadata as JSON.
func (f *JSONFormatter) FormatInfo(w io.Writer, info *ShareInfo) error {
	return writeJSON(w, info)
}

// FormatDownload formats download result as JSON.
func (f *JSONFormatter) FormatDownload(w io.Writer, result *DownloadResult) error {
	return writeJSON(w, result)
}

// FormatStats formats aggregate statistics as JSON.
func (f *JSONFormatter) FormatStats(w io.Writer, stats *Stats) error {
	return writeJSON(w, stats)
}

// FormatError formats an error as JSON. Server errors keep their code.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}{
		Error: err.Error(),
	}

	if apiErr, ok := asAPIError(err); ok {
		output.Code = apiErr.Code
	}
	return writeJSON(w, output)
}

// FormatProfileList formats a list of profiles as JSON.
func (f *JSONFormatter) FormatProfileList(w io.Writer, profiles []Profile, defaultName string) error {
	type jsonProfile struct {
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
		Default  bool   `json:"default,omitempty"`
	}

	output := struct {
		Profiles []jsonProfile `json:"profiles"`
	}{
		Profiles: make([]jsonProfile, len(profiles)),
	}

	for i := range profiles {
		output.Profiles[i] = jsonProfile{
			Name:     profiles[i].Name,
			Endpoint: profiles[i].Endpoint,
			Default:  profiles[i].Name == defaultName,
		}
	}

	return writeJSON(w, output)
}

// FormatProfileShow formats a single profile as JSON.
func (f *JSONFormatter) FormatProfileShow(w io.Writer, profile Profile, isDefault bool) error {
	output := struct {
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
		Default  bool   `json:"default"`
	}{
		Name:     profile.Name,
		Endpoint: profile.Endpoint,
		Default:  isDefault,
	}

	return writeJSON(w, output)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
