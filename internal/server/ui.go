package server

import (
	"embed"

	"github.com/gofiber/fiber/v2"
)

//go:embed ui/index.html
var uiAssets embed.FS

func (s *Server) handleIndex(c *fiber.Ctx) error {
	page, err := uiAssets.ReadFile("ui/index.html")
	if err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(page)
}
