package main

import (
	"context"

	"github.com/shandysiswandi/gotp/internal/app"
)

// @title           gotp API
// @version         1.0
// @description     gotp issues, rate limits and verifies one-time passcodes sent by SMS and email.
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
func main() {
	application := app.New()
	<-application.Start()

	ctx, cancel := context.WithTimeout(context.Background(), application.ShutdownTimeout())
	defer cancel()
	application.Stop(ctx)
}
