package main

import (
	"fmt"
	"os"

	_ "templeops/docs"
)

// @title           Temple Operations API
// @version         1.0
// @description     Task and event lifecycle engine for temple administration modules.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @schemes http
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
