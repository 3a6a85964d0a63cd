package main

import "shiftoffer_backend/internal/app"

func main() {
	app.Run()
}
