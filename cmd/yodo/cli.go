package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run      RunCmd      `cmd:"" help:"Execute a stored workflow or a workflow file"`
	DryRun   DryRunCmd   `cmd:"" name:"dry-run" help:"Show what a run would do without doing it"`
	Learn    LearnCmd    `cmd:"" help:"Learn a workflow from a recording"`
	Import   ImportCmd   `cmd:"" help:"Store a workflow document"`
	Export   ExportCmd   `cmd:"" help:"Write a stored workflow as a document"`
	List     ListCmd     `cmd:"" help:"List stored workflows"`
	History  HistoryCmd  `cmd:"" help:"Show recent runs of a workflow"`
	Catalog  CatalogCmd  `cmd:"" help:"Show the available tools and operations"`
	Schedule ScheduleCmd `cmd:"" help:"Manage recurring runs"`
	Serve    ServeCmd    `cmd:"" help:"Run the HTTP API, scheduler and chat gateways"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	Config    string `short:"c" type:"path" help:"Config file (.json or .toml)" env:"YODO_CONFIG"`
	Workspace string `short:"w" type:"path" help:"Workspace directory (overrides config)"`
	LogLevel  string `help:"Log level (debug, info, warn, error)"`
}

// RunCmd executes a workflow.
type RunCmd struct {
	Workflow string `arg:"" help:"Workflow ID, or a .json/.yaml workflow file"`
	Confirm  bool   `help:"Pass every step through the approval point"`
	JSON     bool   `help:"Print the result as JSON"`
}

// DryRunCmd simulates a workflow.
type DryRunCmd struct {
	Workflow string `arg:"" help:"Workflow ID, or a .json/.yaml workflow file"`
	JSON     bool   `help:"Print the simulation as JSON"`
}

// LearnCmd analyzes a recording.
type LearnCmd struct {
	Recording string `arg:"" type:"existingfile" help:"Recording file (.json or .yaml)"`
	Name      string `short:"n" help:"Workflow name"`
	Output    string `short:"o" help:"Also write the workflow to this file"`
}

// ImportCmd stores a workflow document.
type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"Workflow file (.json or .yaml)"`
}

// ExportCmd writes a stored workflow.
type ExportCmd struct {
	ID     string `arg:"" help:"Workflow ID"`
	Output string `short:"o" help:"Output file; the extension picks the format"`
	Format string `short:"f" default:"yaml" enum:"yaml,json" help:"Format when writing to stdout"`
}

// ListCmd lists stored workflows.
type ListCmd struct{}

// HistoryCmd lists recent runs.
type HistoryCmd struct {
	ID    string `arg:"" help:"Workflow ID"`
	Limit int    `short:"n" default:"10" help:"Number of runs to show"`
}

// CatalogCmd prints the tool catalog.
type CatalogCmd struct {
	JSON bool `help:"Print the catalog as JSON"`
}

// ScheduleCmd groups the schedule subcommands.
type ScheduleCmd struct {
	Add   ScheduleAddCmd   `cmd:"" help:"Run a workflow every interval"`
	List  ScheduleListCmd  `cmd:"" default:"1" help:"List schedules"`
	Clear ScheduleClearCmd `cmd:"" help:"Remove every schedule of a workflow"`
}

type ScheduleAddCmd struct {
	ID    string `arg:"" help:"Workflow ID"`
	Every string `arg:"" help:"Interval, e.g. 1h or 30m"`
}

type ScheduleListCmd struct{}

type ScheduleClearCmd struct {
	ID string `arg:"" help:"Workflow ID"`
}

// ServeCmd runs the long-lived services.
type ServeCmd struct {
	Addr      string `help:"Listen address (overrides config)"`
	NoAPI     bool   `name:"no-api" help:"Do not start the HTTP API"`
	Scheduler bool   `help:"Start the scheduler even when the config disables it"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
