package ticket

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cragr/email2snow-agent/internal/config"
	"github.com/cragr/email2snow-agent/internal/models"
)

// Resolver maps email addresses and categories to ServiceNow identities.
// Lookups consult the remote API first, then the configured fallbacks, then
// hardcoded defaults. Results found in ServiceNow are cached for the process
// lifetime; fallback identities are never cached.
type Resolver struct {
	api                API
	routing            config.RoutingConfig
	createUnknownUsers bool
	logger             *slog.Logger

	mu         sync.Mutex
	userCache  map[string]models.Identity
	groupCache map[string]models.Identity
}

// NewResolver creates a Resolver with empty caches.
func NewResolver(api API, cfg *config.Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		api:                api,
		routing:            cfg.Routing,
		createUnknownUsers: cfg.CreateUnknownUsers,
		logger:             logger,
		userCache:          make(map[string]models.Identity),
		groupCache:         make(map[string]models.Identity),
	}
}

// ResolveCaller resolves the caller identity for an email address. An empty
// address or any lookup failure yields the fallback caller.
func (r *Resolver) ResolveCaller(ctx context.Context, emailAddress string) models.Identity {
	if emailAddress == "" {
		return r.fallbackCaller()
	}

	if cached, ok := r.cachedUser(emailAddress); ok {
		return cached
	}

	user, err := r.api.LookupUserByEmail(ctx, emailAddress)
	if err != nil {
		r.logger.Error("caller lookup failed", "email", emailAddress, "error", err)
		return r.fallbackCaller()
	}

	if user == nil {
		return r.handleUnknownCaller(ctx, emailAddress)
	}

	caller := models.Identity{SysID: user.SysID, Name: user.Name, Email: emailAddress}
	r.storeUser(emailAddress, caller)
	r.logger.Debug("found caller", "name", caller.Name, "email", emailAddress)
	return caller
}

// handleUnknownCaller creates a new sys_user for the address when
// auto-creation is enabled, otherwise returns the fallback caller.
func (r *Resolver) handleUnknownCaller(ctx context.Context, emailAddress string) models.Identity {
	if !r.createUnknownUsers {
		return r.fallbackCaller()
	}

	localPart, _, _ := strings.Cut(emailAddress, "@")
	created, err := r.api.CreateUser(ctx, models.UserPayload{
		Email:     emailAddress,
		UserName:  localPart,
		FirstName: localPart,
		LastName:  "External",
		Active:    true,
	})
	if err != nil {
		r.logger.Error("failed to create user for unknown caller", "email", emailAddress, "error", err)
		return r.fallbackCaller()
	}

	caller := models.Identity{SysID: created.SysID, Name: created.Name, Email: emailAddress}
	r.storeUser(emailAddress, caller)
	r.logger.Info("created new user for caller", "email", emailAddress)
	return caller
}

// ResolveAssignmentGroup resolves the assignment group for a category via the
// configured category-to-group map. Unmapped categories, lookup misses and
// failures all yield the fallback group.
func (r *Resolver) ResolveAssignmentGroup(ctx context.Context, category string) models.Identity {
	cacheKey := "group_" + category

	if cached, ok := r.cachedGroup(cacheKey); ok {
		return cached
	}

	mappedGroup := r.routing.CategoryToGroup[category]
	if mappedGroup == "" {
		return r.fallbackGroup()
	}

	group, err := r.api.LookupGroupByName(ctx, mappedGroup)
	if err != nil {
		r.logger.Error("assignment group lookup failed", "category", category, "group", mappedGroup, "error", err)
		return r.fallbackGroup()
	}
	if group == nil {
		r.logger.Warn("mapped assignment group not found", "category", category, "group", mappedGroup)
		return r.fallbackGroup()
	}

	identity := models.Identity{SysID: group.SysID, Name: group.Name}
	r.storeGroup(cacheKey, identity)
	return identity
}

// ResolveAssignedUser resolves the assigned user for a category via the
// configured category-to-user map. There is no fallback assignee: unmapped
// categories and lookup misses leave the ticket unassigned.
func (r *Resolver) ResolveAssignedUser(ctx context.Context, category string) models.Identity {
	cacheKey := "user_" + category

	if cached, ok := r.cachedUser(cacheKey); ok {
		return cached
	}

	mappedUser := r.routing.CategoryToUser[category]
	if mappedUser == "" {
		return models.Identity{}
	}

	user, err := r.api.LookupUserByUsername(ctx, mappedUser)
	if err != nil {
		r.logger.Error("assigned user lookup failed", "category", category, "user", mappedUser, "error", err)
		return models.Identity{}
	}
	if user == nil {
		return models.Identity{}
	}

	identity := models.Identity{SysID: user.SysID, Name: user.Name}
	r.storeUser(cacheKey, identity)
	return identity
}

// fallbackCaller returns the configured default caller, or the hardcoded
// unknown-caller identity when none is configured.
func (r *Resolver) fallbackCaller() models.Identity {
	if fb := r.routing.Fallbacks.DefaultCaller; fb != (models.Identity{}) {
		return fb
	}
	return models.Identity{
		SysID: "",
		Name:  "Unknown Caller",
		Email: "unknown@company.com",
	}
}

// fallbackGroup returns the configured default assignment group, or the
// hardcoded general support group when none is configured.
func (r *Resolver) fallbackGroup() models.Identity {
	if fb := r.routing.Fallbacks.DefaultAssignmentGroup; fb != (models.Identity{}) {
		return fb
	}
	return models.Identity{
		SysID: "",
		Name:  "General Support",
	}
}

func (r *Resolver) cachedUser(key string) (models.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.userCache[key]
	return identity, ok
}

func (r *Resolver) storeUser(key string, identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userCache[key] = identity
}

func (r *Resolver) cachedGroup(key string) (models.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.groupCache[key]
	return identity, ok
}

func (r *Resolver) storeGroup(key string, identity models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupCache[key] = identity
}
