package main

import (
	"github.com/sirupsen/logrus"

	"github.com/mastuka/tg-tool-bot/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("Service failed: %v", err)
	}
}
