package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"archivist/internal/config"
	"archivist/internal/services"
)

// Requirement defines an external tool archivist drives.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the tools the configuration needs. Commercial
// detection and transcoding tools are optional unless the configured
// defaults use them.
func Requirements(cfg *config.Config) []Requirement {
	transcodes := cfg.Processing.DefaultFormat == "mp4" || cfg.Processing.DefaultFormat == "mkv"
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "Remuxes, trims and joins transport streams"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "Measures the audio/video offset for commercial cuts", Optional: !cfg.Processing.SkipCommercials},
		{Name: "Comskip", Command: cfg.Tools.Comskip, Description: "Finds commercial breaks", Optional: !cfg.Processing.SkipCommercials},
		{Name: "HandBrakeCLI", Command: cfg.Tools.HandBrake, Description: "Transcodes to MP4 and MKV", Optional: !transcodes},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Require resolves command for stage, returning a configuration error when
// it cannot be found.
func Require(stage, name, command string) (string, error) {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return "", services.Wrap(services.ErrConfiguration, stage, "locate "+name,
			fmt.Sprintf("%s is not configured", name), nil)
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stage, "locate "+name,
			fmt.Sprintf("%s was not found; install it or set its path in the config", name), err)
	}
	return resolved, nil
}
