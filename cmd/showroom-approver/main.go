package main

import (
	"context"
	"showroom-approver/cmd/showroom-approver/commands"
	"showroom-approver/pkg/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
