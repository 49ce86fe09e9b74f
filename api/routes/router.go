package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/gigmarket-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/analytics"
	webhookcontrollers "github.com/angelmondragon/gigmarket-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/internal/address"
	"github.com/angelmondragon/gigmarket-backend/internal/admin"
	"github.com/angelmondragon/gigmarket-backend/internal/analytics"
	"github.com/angelmondragon/gigmarket-backend/internal/auth"
	"github.com/angelmondragon/gigmarket-backend/internal/badges"
	"github.com/angelmondragon/gigmarket-backend/internal/categories"
	"github.com/angelmondragon/gigmarket-backend/internal/chat"
	"github.com/angelmondragon/gigmarket-backend/internal/documents"
	"github.com/angelmondragon/gigmarket-backend/internal/emailtemplates"
	"github.com/angelmondragon/gigmarket-backend/internal/emergency"
	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/internal/plans"
	"github.com/angelmondragon/gigmarket-backend/internal/profiles"
	"github.com/angelmondragon/gigmarket-backend/internal/proposals"
	"github.com/angelmondragon/gigmarket-backend/internal/push"
	"github.com/angelmondragon/gigmarket-backend/internal/quotas"
	"github.com/angelmondragon/gigmarket-backend/internal/realtime"
	"github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/internal/seo"
	"github.com/angelmondragon/gigmarket-backend/pkg/auth/session"
	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
)

// RedisStore is the slice of the redis client the HTTP middleware needs.
type RedisStore interface {
	middleware.ReplayStore
	middleware.RateCounter
}

// Deps carries everything the HTTP surface is wired to. A nil Redis disables
// idempotency replay and auth rate limiting; a nil Hub disables the socket
// endpoint.
type Deps struct {
	Sessions       session.AccessSessionChecker
	Redis          RedisStore
	Health         map[string]controllers.Pinger
	Metrics        *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Auth          auth.Service
	Register      auth.RegisterService
	Address       address.Service
	Categories    categories.Service
	Gigs          gigs.Service
	Proposals     proposals.Service
	Profiles      profiles.Service
	Quotas        quotas.Service
	Reviews       reviews.Service
	Badges        badges.Service
	Chat          chat.Service
	Payments      payments.Service
	Plans         plans.Service
	Push          push.Service
	Notifications notifications.Service
	Documents     documents.Service
	Emergency     emergency.Service
	Analytics     analytics.Service
	Admin         admin.Service
	Templates     emailtemplates.Service
	SEO           seo.Service
	Hub           *realtime.Hub

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeSigner       webhookcontrollers.StripeSigner
	StripeWebhookGuard webhookcontrollers.StripeWebhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimiddleware.RealIP,
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	var (
		idempotencyStore middleware.ReplayStore
		rateStore        middleware.RateCounter
	)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		rateStore = deps.Redis
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	rateLimited := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if rateStore == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.AuthRateLimit(policy, rateStore, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSigner, deps.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.With(rateLimited(loginPolicy)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(rateLimited(registerPolicy)).Post("/register", controllers.AuthRegister(deps.Register, deps.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Anonymous browsing; a signed-in caller gets owner-aware responses.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
			r.Get("/categories", controllers.ListCategories(deps.Categories, logg))
			r.Get("/categories/suggest", controllers.SuggestCategories(deps.Categories, logg))
			r.Get("/gigs", controllers.ListGigs(deps.Gigs, logg))
			r.Get("/gigs/{gigId}", controllers.GetGig(deps.Gigs, logg))
			r.Get("/profiles/{profileId}", controllers.GetPublicProfile(deps.Profiles, deps.Quotas, logg))
			r.Get("/profiles/{profileId}/reviews", controllers.ListProfileReviews(deps.Reviews, logg))
			r.Get("/profiles/{profileId}/badges", controllers.ListProfileBadges(deps.Badges, logg))
		})

		if deps.Hub != nil {
			r.With(middleware.QueryTokenAuth(cfg.JWT, deps.Sessions, logg)).
				Get("/realtime", controllers.RealtimeSocket(deps.Hub, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/ping", controllers.Ping())

			if deps.Address != nil {
				r.Get("/address/suggest", controllers.AddressSuggest(deps.Address, logg))
				r.Post("/address/resolve", controllers.AddressResolve(deps.Address, logg))
			}

			r.Get("/profiles/me", controllers.GetMyProfile(deps.Profiles, logg))
			r.Patch("/profiles/me", controllers.UpdateMyProfile(deps.Profiles, logg))
			r.Get("/profiles/me/completion", controllers.MyProfileCompletion(deps.Profiles, logg))
			r.Post("/profiles/{profileId}/contact", controllers.ViewProfileContact(deps.Quotas, logg))
			r.Get("/quotas/me", controllers.MyQuotaUsage(deps.Quotas, logg))

			r.With(requireRole(logg, enums.UserRoleClient)).Post("/gigs", controllers.CreateGig(deps.Gigs, logg))
			r.Get("/gigs/mine", controllers.ListMyGigs(deps.Gigs, logg))
			r.Patch("/gigs/{gigId}", controllers.UpdateGig(deps.Gigs, logg))
			r.Post("/gigs/{gigId}/cancel", controllers.CancelGig(deps.Gigs, logg))
			r.Post("/gigs/{gigId}/complete", controllers.CompleteGig(deps.Gigs, logg))
			r.With(requireRole(logg, enums.UserRoleProvider)).Post("/gigs/{gigId}/proposals", controllers.SubmitProposal(deps.Proposals, logg))
			r.Get("/gigs/{gigId}/proposals", controllers.ListGigProposals(deps.Proposals, logg))
			r.Post("/gigs/{gigId}/reviews", controllers.CreateReview(deps.Reviews, logg))
			r.With(requireRole(logg, enums.UserRoleClient)).Post("/gigs/{gigId}/escrow", controllers.CreateEscrow(deps.Payments, logg))

			r.Route("/proposals", func(r chi.Router) {
				r.Get("/mine", controllers.ListMyProposals(deps.Proposals, logg))
				r.Post("/{proposalId}/accept", controllers.AcceptProposal(deps.Proposals, logg))
				r.Post("/{proposalId}/withdraw", controllers.WithdrawProposal(deps.Proposals, logg))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", controllers.ListConversations(deps.Chat, logg))
				r.Post("/", controllers.StartConversation(deps.Chat, logg))
				r.Get("/{conversationId}/messages", controllers.ListMessages(deps.Chat, logg))
				r.Post("/{conversationId}/messages", controllers.SendMessage(deps.Chat, logg))
				r.Post("/{conversationId}/read", controllers.MarkConversationRead(deps.Chat, logg))
				r.Post("/{conversationId}/typing", controllers.ConversationTyping(deps.Chat, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", controllers.ListMyPayments(deps.Payments, logg))
				r.Post("/{paymentId}/release", controllers.ReleasePayment(deps.Payments, logg))
				r.Post("/{paymentId}/refund", controllers.RefundPayment(deps.Payments, logg))
			})
			r.With(requireRole(logg, enums.UserRoleProvider)).Post("/payouts/onboard", controllers.OnboardPayouts(deps.Payments, logg))

			r.Route("/plans", func(r chi.Router) {
				r.Get("/", controllers.ListPlans(deps.Plans, logg))
				r.Post("/checkout", controllers.CreatePlanCheckout(deps.Plans, logg))
				r.Post("/cancel", controllers.CancelPlan(deps.Plans, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
				r.Get("/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			})

			r.Route("/push-tokens", func(r chi.Router) {
				r.Post("/", controllers.RegisterPushToken(deps.Push, logg))
				r.Delete("/", controllers.UnregisterPushToken(deps.Push, logg))
			})

			r.Route("/documents", func(r chi.Router) {
				r.Get("/{documentId}/download", controllers.DocumentDownload(deps.Documents, logg))
				r.Group(func(r chi.Router) {
					r.Use(requireRole(logg, enums.UserRoleProvider))
					r.Get("/", controllers.ListMyDocuments(deps.Documents, logg))
					r.Post("/", controllers.RequestDocumentUpload(deps.Documents, logg))
					r.Post("/{documentId}/confirm", controllers.ConfirmDocumentUpload(deps.Documents, logg))
					r.Delete("/{documentId}", controllers.DeleteDocument(deps.Documents, logg))
				})
			})

			r.Route("/emergencies", func(r chi.Router) {
				r.With(requireRole(logg, enums.UserRoleClient)).Post("/", controllers.CreateEmergency(deps.Emergency, logg))
				r.Get("/mine", controllers.ListMyEmergencies(deps.Emergency, logg))
				r.With(requireRole(logg, enums.UserRoleProvider)).Post("/location", controllers.UpdateProviderLocation(deps.Emergency, logg))
				r.Get("/{emergencyId}", controllers.GetEmergency(deps.Emergency, logg))
				r.Get("/{emergencyId}/tracking", controllers.EmergencyTracking(deps.Emergency, logg))
				r.Post("/{emergencyId}/cancel", controllers.CancelEmergency(deps.Emergency, logg))
				r.Post("/{emergencyId}/complete", controllers.CompleteEmergency(deps.Emergency, logg))
				r.Group(func(r chi.Router) {
					r.Use(requireRole(logg, enums.UserRoleProvider))
					r.Post("/{emergencyId}/accept", controllers.AcceptEmergency(deps.Emergency, logg))
					r.Post("/{emergencyId}/en-route", controllers.EmergencyEnRoute(deps.Emergency, logg))
					r.Post("/{emergencyId}/arrived", controllers.EmergencyArrived(deps.Emergency, logg))
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(logg, enums.UserRoleAdmin))
				if deps.Analytics != nil {
					r.Get("/analytics/marketplace", analyticscontrollers.MarketplaceAnalytics(deps.Analytics, logg))
					r.Get("/analytics/category-views", analyticscontrollers.CategoryViews(deps.Analytics, logg))
				}

				r.Route("/users", func(r chi.Router) {
					r.Get("/", controllers.AdminListUsers(deps.Admin, logg))
					r.Post("/{userId}/suspend", controllers.AdminSuspendUser(deps.Admin, logg))
					r.Post("/{userId}/reactivate", controllers.AdminReactivateUser(deps.Admin, logg))
				})

				r.Route("/gigs", func(r chi.Router) {
					r.Get("/pending", controllers.AdminPendingGigs(deps.Gigs, logg))
					r.Post("/{gigId}/approve", controllers.AdminApproveGig(deps.Gigs, logg))
					r.Post("/{gigId}/reject", controllers.AdminRejectGig(deps.Gigs, logg))
				})

				r.Route("/documents", func(r chi.Router) {
					r.Get("/pending", controllers.AdminPendingDocuments(deps.Documents, logg))
					r.Post("/{documentId}/review", controllers.AdminReviewDocument(deps.Documents, logg))
				})

				r.Route("/categories", func(r chi.Router) {
					r.Post("/", controllers.AdminCreateCategory(deps.Categories, logg))
					r.Patch("/{categoryId}", controllers.AdminUpdateCategory(deps.Categories, logg))
					r.Delete("/{categoryId}", controllers.AdminDeleteCategory(deps.Categories, logg))
				})

				r.Route("/email-templates", func(r chi.Router) {
					r.Get("/", controllers.AdminListEmailTemplates(deps.Templates, logg))
					r.Post("/", controllers.AdminCreateEmailTemplate(deps.Templates, logg))
					r.Get("/{templateKey}", controllers.AdminGetEmailTemplate(deps.Templates, logg))
					r.Put("/{templateKey}", controllers.AdminUpdateEmailTemplate(deps.Templates, logg))
					r.Delete("/{templateKey}", controllers.AdminDeleteEmailTemplate(deps.Templates, logg))
					r.Post("/{templateKey}/preview", controllers.AdminPreviewEmailTemplate(deps.Templates, logg))
					r.Post("/{templateKey}/test", controllers.AdminSendTestEmail(deps.Templates, logg))
				})

				r.Route("/seo", func(r chi.Router) {
					r.Get("/dashboard", controllers.AdminSEODashboard(deps.SEO, logg))
					r.Get("/pages", controllers.AdminListSEOPages(deps.SEO, logg))
					r.Post("/pages", controllers.AdminCreateSEOPage(deps.SEO, logg))
					r.Get("/pages/{pageId}", controllers.AdminGetSEOPage(deps.SEO, logg))
					r.Patch("/pages/{pageId}", controllers.AdminUpdateSEOPage(deps.SEO, logg))
					r.Delete("/pages/{pageId}", controllers.AdminDeleteSEOPage(deps.SEO, logg))
				})
			})
		})
	})

	return r
}

func requireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return middleware.RequireRole(logg, names...)
}
