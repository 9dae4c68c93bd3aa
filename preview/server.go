package preview

import (
	_ "embed"
	"errors"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"imgxform/session"
	"imgxform/transform"
)

//go:embed index.html
var indexPage string

const uploadField = "image"

// ParamsBody is the JSON form of the preview parameters. Resolution is a
// percentage, as on the slider.
type ParamsBody struct {
	ColorBits  *int `json:"colorBits,omitempty"`
	Resolution *int `json:"resolution,omitempty"`
}

type paramsResponse struct {
	ColorBits  int `json:"colorBits"`
	Resolution int `json:"resolution"`
	Levels     int `json:"levels"`
}

func toResponse(p transform.Params) paramsResponse {
	return paramsResponse{
		ColorBits:  p.ColorBits,
		Resolution: p.Percent(),
		Levels:     transform.Levels(p.ColorBits),
	}
}

type Server struct {
	app     *fiber.App
	session *session.Session
	logger  *slog.Logger
}

// Options configures the HTTP surface.
type Options struct {
	// BodyLimit caps request bodies and should be at least the session
	// upload limit.
	BodyLimit int
	// AllowOrigins lists the origins allowed to call the API from another
	// page. Empty means same-origin only.
	AllowOrigins []string
}

// NewServer builds the HTTP surface of a preview session.
func NewServer(s *session.Session, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = slog.Default()
	}

	srv := &Server{
		session: s,
		logger:  log,
	}

	srv.app = fiber.New(fiber.Config{
		AppName:               "imgxform",
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          srv.handleError,
	})

	srv.app.Use(recover.New())
	srv.app.Use(logger.New())
	if len(opts.AllowOrigins) > 0 {
		srv.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opts.AllowOrigins, ","),
			AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut}, ","),
		}))
	}

	srv.app.Get("/", srv.handleIndex)
	srv.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	srv.app.Post("/upload", srv.handleUpload)
	srv.app.Get("/params", srv.handleGetParams)
	srv.app.Put("/params", srv.handlePutParams)
	srv.app.Post("/reset", srv.handleReset)
	srv.app.Get("/render", srv.handleRender)
	srv.app.Get("/original", srv.handleOriginal)
	srv.app.Get("/source", srv.handleSource)

	return srv
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("preview server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(indexPage)
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing " + uploadField + " file field"})
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Error("could not close upload", "name", fh.Filename, "error", closeErr)
		}
	}()

	info, err := s.session.Load(f, fh.Header.Get(fiber.HeaderContentType))
	switch {
	case errors.Is(err, session.ErrInvalidInputFile):
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": session.ErrInvalidInputFile.Error()})
	case errors.Is(err, session.ErrTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrDecode):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return err
	}

	return c.JSON(info)
}

func (s *Server) handleSource(c *fiber.Ctx) error {
	info, ok := s.session.Info()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(info)
}

func (s *Server) handleGetParams(c *fiber.Ctx) error {
	return c.JSON(toResponse(s.session.Params()))
}

func (s *Server) handlePutParams(c *fiber.Ctx) error {
	var body ParamsBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot parse request body"})
	}

	p, err := s.applyParams(body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(toResponse(p))
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	return c.JSON(toResponse(s.session.Reset()))
}

// applyParams changes only the fields present in body, atomically, so a bad
// request changes nothing and concurrent requests do not undo each other.
func (s *Server) applyParams(body ParamsBody) (transform.Params, error) {
	return s.session.Update(func(p *transform.Params) error {
		if body.ColorBits != nil {
			p.ColorBits = *body.ColorBits
		}
		if body.Resolution != nil {
			ratio, err := transform.RatioFromPercent(*body.Resolution)
			if err != nil {
				return err
			}
			p.Ratio = ratio
		}
		return nil
	})
}

func queryInt(c *fiber.Ctx, key string) (*int, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+key+": "+v)
	}
	return &n, nil
}

func (s *Server) handleRender(c *fiber.Ctx) error {
	var body ParamsBody
	var err error
	if body.ColorBits, err = queryInt(c, "colorBits"); err != nil {
		return err
	}
	if body.Resolution, err = queryInt(c, "resolution"); err != nil {
		return err
	}
	if _, err = s.applyParams(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, ok, err := s.session.Run()
	if err != nil {
		return err
	}
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}

	c.Set("X-Color-Bits", strconv.Itoa(res.Params.ColorBits))
	c.Set("X-Resolution", strconv.Itoa(res.Params.Percent()))
	return s.sendPNG(c, res.Display)
}

func (s *Server) handleOriginal(c *fiber.Ctx) error {
	img, ok, err := s.session.Original()
	if err != nil {
		return err
	}
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return s.sendPNG(c, img)
}

func (s *Server) sendPNG(c *fiber.Ctx, img image.Image) error {
	data, err := encodePNG(img)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(data)
}
