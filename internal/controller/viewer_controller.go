package controller

import (
	"bytes"

	"medviewer-be/internal/dto"
	"medviewer-be/internal/pkg/serverutils"
	"medviewer-be/internal/service"
	"medviewer-be/pkg/render"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultImageSize = 512
	maxImageSize     = 2048
)

type IViewerController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Close(ctx *fiber.Ctx) error
	State(ctx *fiber.Ctx) error
	Load(ctx *fiber.Ctx) error
	Remove(ctx *fiber.Ctx) error
	Clear(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
	SetObliques(ctx *fiber.Ctx) error
	SetQuadView(ctx *fiber.Ctx) error
	SetFullscreen(ctx *fiber.Ctx) error
	SetObliqueMode(ctx *fiber.Ctx) error
	SetCursor(ctx *fiber.Ctx) error
	SetSlider(ctx *fiber.Ctx) error
	Interact(ctx *fiber.Ctx) error
	SetWindowLevel(ctx *fiber.Ctx) error
	SetDatasetProperties(ctx *fiber.Ctx) error
	SetPreset(ctx *fiber.Ctx) error
	Presets(ctx *fiber.Ctx) error
	Image(ctx *fiber.Ctx) error
	Activities(ctx *fiber.Ctx) error
}

type viewerController struct {
	service  service.IViewerService
	activity service.IActivityService
}

func NewViewerController(service service.IViewerService, activity service.IActivityService) IViewerController {
	return &viewerController{service: service, activity: activity}
}

func (c *viewerController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/viewer")
	h.Use(serverutils.JwtMiddleware)
	h.Get("/presets", c.Presets)
	h.Get("/activities", c.Activities)

	h.Post("/sessions", c.Create)
	h.Delete("/sessions/:id", c.Close)
	h.Get("/sessions/:id/state", c.State)

	h.Post("/sessions/:id/datasets", c.Load)
	h.Delete("/sessions/:id/datasets", c.Clear)
	h.Delete("/sessions/:id/datasets/:datasetId", c.Remove)
	h.Put("/sessions/:id/datasets/:datasetId", c.SetDatasetProperties)
	h.Post("/sessions/:id/reset", c.Reset)

	h.Put("/sessions/:id/layout/obliques", c.SetObliques)
	h.Put("/sessions/:id/layout/quad", c.SetQuadView)
	h.Put("/sessions/:id/layout/fullscreen", c.SetFullscreen)
	h.Put("/sessions/:id/oblique-mode", c.SetObliqueMode)

	h.Put("/sessions/:id/cursor", c.SetCursor)
	h.Put("/sessions/:id/views/:view/slider", c.SetSlider)
	h.Post("/sessions/:id/views/:view/interactions", c.Interact)
	h.Get("/sessions/:id/views/:view/image", c.Image)
	h.Put("/sessions/:id/window-level", c.SetWindowLevel)
	h.Put("/sessions/:id/preset", c.SetPreset)
}

func userID(ctx *fiber.Ctx) string {
	id, _ := ctx.Locals("user_id").(string)
	return id
}

func (c *viewerController) Create(ctx *fiber.Ctx) error {
	token, _ := ctx.Locals("token").(string)

	res, err := c.service.Create(ctx.UserContext(), userID(ctx), token)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Viewer session created", res))
}

func (c *viewerController) Close(ctx *fiber.Ctx) error {
	if err := c.service.Close(ctx.UserContext(), userID(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Viewer session closed", nil))
}

func (c *viewerController) State(ctx *fiber.Ctx) error {
	res, err := c.service.State(ctx.UserContext(), userID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get viewer state", res))
}

func (c *viewerController) Load(ctx *fiber.Ctx) error {
	var req dto.LoadDatasetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Load(ctx.UserContext(), userID(ctx), ctx.Params("id"), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Dataset load started", res))
}

func (c *viewerController) Remove(ctx *fiber.Ctx) error {
	if err := c.service.Remove(ctx.UserContext(), userID(ctx), ctx.Params("id"), ctx.Params("datasetId")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Dataset removed", nil))
}

func (c *viewerController) Clear(ctx *fiber.Ctx) error {
	if err := c.service.Clear(ctx.UserContext(), userID(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Viewer cleared", nil))
}

func (c *viewerController) Reset(ctx *fiber.Ctx) error {
	if err := c.service.Reset(ctx.UserContext(), userID(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Viewer reset", nil))
}

func (c *viewerController) SetObliques(ctx *fiber.Ctx) error {
	var req dto.ObliquesRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetObliques(ctx.UserContext(), userID(ctx), ctx.Params("id"), *req.Visible); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Obliques updated", nil))
}

func (c *viewerController) SetQuadView(ctx *fiber.Ctx) error {
	var req dto.QuadViewRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetQuadView(ctx.UserContext(), userID(ctx), ctx.Params("id"), *req.Enabled); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Layout updated", nil))
}

func (c *viewerController) SetFullscreen(ctx *fiber.Ctx) error {
	var req dto.FullscreenRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetFullscreen(ctx.UserContext(), userID(ctx), ctx.Params("id"), req.View); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Layout updated", nil))
}

func (c *viewerController) SetObliqueMode(ctx *fiber.Ctx) error {
	var req dto.ObliqueModeRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetObliqueMode(ctx.UserContext(), userID(ctx), ctx.Params("id"), *req.Enabled); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Oblique mode updated", nil))
}

func (c *viewerController) SetCursor(ctx *fiber.Ctx) error {
	var req dto.CursorRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetCursor(ctx.UserContext(), userID(ctx), ctx.Params("id"), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Cursor updated", nil))
}

func (c *viewerController) SetSlider(ctx *fiber.Ctx) error {
	var req dto.SliderRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetSlider(ctx.UserContext(), userID(ctx), ctx.Params("id"), ctx.Params("view"), *req.Value); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Slider updated", nil))
}

func (c *viewerController) Interact(ctx *fiber.Ctx) error {
	var req dto.InteractionRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	req.View = ctx.Params("view")
	if err := c.service.Interact(ctx.UserContext(), userID(ctx), ctx.Params("id"), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Interaction applied", nil))
}

func (c *viewerController) SetWindowLevel(ctx *fiber.Ctx) error {
	var req dto.WindowLevelRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetWindowLevel(ctx.UserContext(), userID(ctx), ctx.Params("id"), *req.Min, *req.Max); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Window level updated", nil))
}

func (c *viewerController) SetDatasetProperties(ctx *fiber.Ctx) error {
	var req dto.DatasetPropertiesRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	err := c.service.SetDatasetProperties(ctx.UserContext(), userID(ctx), ctx.Params("id"), ctx.Params("datasetId"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Dataset updated", nil))
}

func (c *viewerController) SetPreset(ctx *fiber.Ctx) error {
	var req dto.PresetRequest
	if err := parse(ctx, &req); err != nil {
		return err
	}
	if err := c.service.SetPreset(ctx.UserContext(), userID(ctx), ctx.Params("id"), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Preset applied", nil))
}

func (c *viewerController) Presets(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get presets", c.service.Presets()))
}

func (c *viewerController) Image(ctx *fiber.Ctx) error {
	width := ctx.QueryInt("width", defaultImageSize)
	height := ctx.QueryInt("height", defaultImageSize)
	if width <= 0 || height <= 0 || width > maxImageSize || height > maxImageSize {
		return fiber.NewError(fiber.StatusBadRequest, "width and height must be within 1..2048")
	}

	img, err := c.service.Render(ctx.UserContext(), userID(ctx), ctx.Params("id"), ctx.Params("view"), width, height)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := render.EncodeJPEG(&buf, img); err != nil {
		return err
	}
	ctx.Set(fiber.HeaderContentType, "image/jpeg")
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.Send(buf.Bytes())
}

func (c *viewerController) Activities(ctx *fiber.Ctx) error {
	// Rows are filtered by the caller, so closed sessions stay listable.
	res, err := c.activity.List(ctx.UserContext(), userID(ctx), ctx.Query("session_id"), ctx.QueryInt("limit", 50), ctx.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get activities", res))
}

// parse reads and validates a JSON body.
func parse(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return serverutils.ValidateRequest(req)
}
