package main

import (
	"log"

	"freelance/internal/app"
)

func main() {
	app, err := app.NewNotifierApp()
	if err != nil {
		log.Fatal(err)
	}

	app.Run()
}
