package main

import "courierdesk_backend/internal/app"

func main() {
	app.Run()
}
