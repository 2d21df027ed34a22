package app

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/campuskit/internal/ctxutil"
	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/labschedule"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/personal"
	"github.com/garyellow/campuskit/internal/portal"
	"github.com/garyellow/campuskit/internal/ratelimit"
	"github.com/garyellow/campuskit/internal/schedule"
	"github.com/garyellow/campuskit/internal/service"
)

// statusClientClosedRequest marks a request whose caller went away.
const statusClientClosedRequest = 499

// PortalSource reads portal news.
type PortalSource interface {
	GetAll(ctx context.Context) ([]portal.CategoryItem, [][]portal.InfoItem, error)
	GetInfo(ctx context.Context, categoryID int) ([]portal.InfoItem, error)
}

// ScheduleSource reads class schedules.
type ScheduleSource interface {
	Get(ctx context.Context, accessToken string, start, end time.Time) ([]*schedule.Item, error)
}

// LabScheduleSource reads the scraped lab schedule.
type LabScheduleSource interface {
	Get(ctx context.Context, creds labschedule.Credentials) (map[int][]*labschedule.Item, error)
}

// ServiceSource searches campus services.
type ServiceSource interface {
	Search(ctx context.Context, accessToken, query string) ([]service.Item, error)
}

// PersonalSource reads the student profile.
type PersonalSource interface {
	Get(ctx context.Context, accessToken string) (*personal.Info, error)
}

// Cleaner wipes cached state.
type Cleaner interface {
	Clean(ctx context.Context) error
}

// Sources are the repositories behind the gateway routes.
type Sources struct {
	Portal      PortalSource
	Schedule    ScheduleSource
	LabSchedule LabScheduleSource
	Service     ServiceSource
	Personal    PersonalSource
	Cleaner     Cleaner
}

// SourcesFrom exposes repos as gateway sources.
func SourcesFrom(repos *Repositories) Sources {
	return Sources{
		Portal:      repos.Portal,
		Schedule:    repos.Schedule,
		LabSchedule: repos.LabSchedule,
		Service:     repos.Service,
		Personal:    repos.Personal,
		Cleaner:     repos,
	}
}

// GatewayOptions configures access control.
type GatewayOptions struct {
	// Logins throttles SSO logins per username; nil disables throttling.
	Logins *ratelimit.KeyedLimiter
	// AdminToken guards DELETE /api/cache; empty disables the route.
	AdminToken string
}

// Gateway serves the repositories as JSON over HTTP.
type Gateway struct {
	src        Sources
	logins     *ratelimit.KeyedLimiter
	adminToken string
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewGateway creates a gateway.
func NewGateway(src Sources, opts GatewayOptions, m *metrics.Metrics, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	return &Gateway{src: src, logins: opts.Logins, adminToken: opts.AdminToken, metrics: m, logger: log}
}

// Register mounts the /api routes.
func (g *Gateway) Register(router gin.IRouter) {
	api := router.Group("/api")
	api.GET("/portal", g.getPortal)
	api.GET("/portal/:id", g.getPortalInfo)
	api.GET("/schedule", g.requireToken, g.getSchedule)
	api.POST("/lab-schedule", g.postLabSchedule)
	api.GET("/services", g.requireToken, g.getServices)
	api.GET("/personal", g.requireToken, g.getPersonal)
	api.DELETE("/cache", adminAuthMiddleware(g.adminToken), g.deleteCache)
}

type portalCategory struct {
	portal.CategoryItem
	Items []portal.InfoItem `json:"items"`
}

func (g *Gateway) getPortal(c *gin.Context) {
	categories, info, err := g.src.Portal.GetAll(c.Request.Context())
	if err != nil {
		g.respondError(c, "portal", err)
		return
	}
	out := make([]portalCategory, len(categories))
	for i, category := range categories {
		out[i] = portalCategory{CategoryItem: category, Items: info[i]}
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (g *Gateway) getPortalInfo(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category id must be an integer"})
		return
	}
	items, err := g.src.Portal.GetInfo(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, "portal_info", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type scheduleDay struct {
	Date  string           `json:"date"`
	Slots []*schedule.Item `json:"slots"`
}

func (g *Gateway) getSchedule(c *gin.Context) {
	start, errStart := time.ParseInLocation(time.DateOnly, c.Query("start"), time.Local)
	end, errEnd := time.ParseInLocation(time.DateOnly, c.Query("end"), time.Local)
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must be YYYY-MM-DD"})
		return
	}
	if err := schedule.ValidateRange(start, end); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slots, err := g.src.Schedule.Get(c.Request.Context(), accessToken(c), start, end)
	if err != nil {
		g.respondError(c, "schedule", err)
		return
	}

	days := schedule.Days(start, end)
	out := make([]scheduleDay, 0, len(days))
	for i, day := range days {
		lo, hi := i*schedule.SlotsPerDay, (i+1)*schedule.SlotsPerDay
		if hi > len(slots) {
			break
		}
		out = append(out, scheduleDay{Date: day.Format(time.DateOnly), Slots: slots[lo:hi]})
	}
	c.JSON(http.StatusOK, gin.H{"days": out})
}

type labScheduleRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (g *Gateway) postLabSchedule(c *gin.Context) {
	var req labScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	ctx := ctxutil.WithAccount(c.Request.Context(), req.Username)

	if g.logins != nil && !g.logins.Allow(req.Username) {
		g.logger.WarnContext(ctx, "Lab login throttled")
		retry := max(int(math.Ceil(g.logins.RetryAfter(req.Username).Seconds())), 1)
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many login attempts",
			"kind":  "rate_limited",
		})
		return
	}

	weeks, err := g.src.LabSchedule.Get(ctx, labschedule.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		g.respondError(c, "lab_schedule", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weeks": weeks})
}

func (g *Gateway) getServices(c *gin.Context) {
	items, err := g.src.Service.Search(c.Request.Context(), accessToken(c), c.Query("q"))
	if err != nil {
		g.respondError(c, "services", err)
		return
	}
	if items == nil {
		items = []service.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (g *Gateway) getPersonal(c *gin.Context) {
	info, err := g.src.Personal.Get(c.Request.Context(), accessToken(c))
	if err != nil {
		g.respondError(c, "personal", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (g *Gateway) deleteCache(c *gin.Context) {
	if err := g.src.Cleaner.Clean(c.Request.Context()); err != nil {
		g.respondError(c, "cache", err)
		return
	}
	c.Status(http.StatusNoContent)
}

const tokenKey = "access_token"

// requireToken rejects requests without a bearer token.
func (g *Gateway) requireToken(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
		return
	}
	c.Set(tokenKey, strings.TrimSpace(token))
	c.Next()
}

func accessToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// respondError renders err. An APIError keeps its upstream status, every
// other failure is a 502. A request whose client went away gets no body; a
// context error while the client is still there is an IO failure.
func (g *Gateway) respondError(c *gin.Context, route string, err error) {
	ctx := c.Request.Context()
	if ctx.Err() != nil && domerrors.IsCancellation(err) {
		g.logger.DebugContext(ctx, "Request canceled", "route", route)
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}
	err = domerrors.MapContextError(ctx, err)

	kind := domerrors.KindOf(err)
	if kind == 0 {
		kind = domerrors.KindUnknown
	}
	g.metrics.RecordHTTPError(kind.String(), route)

	status := http.StatusBadGateway
	if f, ok := domerrors.AsFailure(err); ok {
		if apiErr, ok := f.(*domerrors.APIError); ok && apiErr.Code >= 400 && apiErr.Code < 600 {
			status = apiErr.Code
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": domerrors.UserMessage(err),
		"kind":  kind.String(),
	})
}
