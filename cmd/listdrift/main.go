package main

import (
	"github.com/leoncowle/mastodon-misc/cmd/listdrift/commands"
	"github.com/leoncowle/mastodon-misc/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
