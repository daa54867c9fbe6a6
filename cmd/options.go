package cmd

// Options is the root for the CLI. Struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	DB          string `short:"d" long:"db" description:"Database path (default $STATEMAP_DB or statemap.db)"`
	Backend     string `short:"b" long:"backend" choice:"sqlite" choice:"bolt" description:"Storage backend (default $STATEMAP_BACKEND or sqlite)"`
	Verbose     bool   `short:"v" long:"verbose" description:"Log at debug level"`
	Telemetry   bool   `long:"telemetry" description:"Write traces and metrics to stderr"`
	MetricsFile string `long:"metrics-file" description:"Write Prometheus metrics to this file on exit (default $STATEMAP_METRICS_FILE)"`

	Load    *LoadCmd    `command:"load"    description:"Apply newline delimited JSON change messages to a room"`
	Show    *ShowCmd    `command:"show"    description:"Print the stored state of a room"`
	Resolve *ResolveCmd `command:"resolve" description:"Partition and resolve the state of several rooms"`
	Rooms   *RoomsCmd   `command:"rooms"   description:"List stored rooms"`
	Delete  *DeleteCmd  `command:"delete"  description:"Delete the stored state of a room"`
	Publish *PublishCmd `command:"publish" description:"Publish the stored state of a room to a durable stream"`
	Sync    *SyncCmd    `command:"sync"    description:"Replay a durable stream into the stored state of a room"`
}

// Init instantiates the sub-command referenced by the first positional argument
// so that go-flags can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "load":
		o.Load = &LoadCmd{}
	case "show":
		o.Show = &ShowCmd{}
	case "resolve":
		o.Resolve = &ResolveCmd{}
	case "rooms":
		o.Rooms = &RoomsCmd{}
	case "delete":
		o.Delete = &DeleteCmd{}
	case "publish":
		o.Publish = &PublishCmd{}
	case "sync":
		o.Sync = &SyncCmd{}
	}
}
