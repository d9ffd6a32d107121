package commands

import (
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	// CacheSchema is the local cache format; entries written under another
	// value are discarded on read.
	CacheSchema int `json:"cache_schema"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version, build and local cache format of cropcare.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

func runVersion(cmd *cobra.Command, short bool) error {
	formatter := newFormatter(cmd)

	if short {
		if formatter.IsJSON() {
			return formatter.JSON(map[string]string{"version": Version})
		}
		formatter.Println("%s", Version)
		return nil
	}

	info := VersionInfo{
		Version:     Version,
		GitCommit:   GitCommit,
		BuildDate:   BuildDate,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		CacheSchema: offline.CacheSchemaVersion,
	}

	if formatter.IsJSON() {
		return formatter.JSON(info)
	}

	formatter.Header("CropCare " + info.Version)
	formatter.Item("Commit", info.GitCommit)
	formatter.Item("Built", info.BuildDate)
	formatter.Item("Go", info.GoVersion+" "+info.Platform)
	formatter.Item("Cache schema", strconv.Itoa(info.CacheSchema))
	return nil
}
