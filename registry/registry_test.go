package registry

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimesh/agentmesh/core"
)

func testCard(id string, capabilities ...string) *core.AgentCard {
	card := &core.AgentCard{
		AgentID:  id,
		Name:     id,
		Version:  "1.0.0",
		Endpoint: core.Endpoint{URL: fmt.Sprintf("http://%s:9000/invoke", id)},
	}
	for _, name := range capabilities {
		card.Capabilities = append(card.Capabilities, core.Capability{Name: name})
	}
	return card
}

func agentIDs(cards []*core.AgentCard) []string {
	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.AgentID)
	}
	sort.Strings(ids)
	return ids
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testCard("fertilizer-advisor", "recommend_fertilizer")))

	card, ok := r.Get("fertilizer-advisor")
	require.True(t, ok)
	assert.Equal(t, "fertilizer-advisor", card.AgentID)
	assert.Equal(t, core.AgentStatusActive, card.Status, "normalized on registration")
	assert.False(t, card.Metadata.UpdatedAt.IsZero())

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestRegisterValidates(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Register(nil), core.ErrInvalidAgentCard)

	bad := testCard("bad-version")
	bad.Version = "1.0"
	assert.ErrorIs(t, r.Register(bad), core.ErrInvalidVersion)

	assert.Equal(t, 0, r.Stats().TotalAgents)
}

func TestRegisterGeneratesAndReportsID(t *testing.T) {
	r := New()
	card := testCard("", "recommend_fertilizer")
	require.NoError(t, r.Register(card))

	// the generated id is written back so the registrant learns it
	require.NotEmpty(t, card.AgentID)

	stored, ok := r.Get(card.AgentID)
	require.True(t, ok)
	assert.Equal(t, card.AgentID, stored.AgentID)
}

func TestRegisterDoesNotMutateCaller(t *testing.T) {
	r := New()
	card := testCard("yield-predictor", "predict_yield")
	require.NoError(t, r.Register(card))

	assert.True(t, card.Metadata.UpdatedAt.IsZero(), "caller's card untouched")

	// mutating the caller's card after registration must not affect the
	// stored copy
	card.Name = "changed"
	stored, _ := r.Get("yield-predictor")
	assert.Equal(t, "yield-predictor", stored.Name)
}

func TestGetReturnsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testCard("soil-analyzer", "analyze_soil")))

	first, _ := r.Get("soil-analyzer")
	first.Name = "mutated"

	second, _ := r.Get("soil-analyzer")
	assert.Equal(t, "soil-analyzer", second.Name)
}

func TestReRegisterReindexes(t *testing.T) {
	r := New()
	card := testCard("disease-expert", "diagnose_disease", "recommend_treatment")
	card.Metadata.Tags = []string{"diagnosis"}
	require.NoError(t, r.Register(card))

	// shrink the capability set and change the tags
	updated := testCard("disease-expert", "diagnose_disease")
	updated.Metadata.Tags = []string{"advisory"}
	require.NoError(t, r.Register(updated))

	assert.Empty(t, r.DiscoverByCapability("recommend_treatment"),
		"removed capability must not resolve")
	assert.Empty(t, r.DiscoverByTags([]string{"diagnosis"}))
	assert.Equal(t, []string{"disease-expert"}, agentIDs(r.DiscoverByCapability("diagnose_disease")))
	assert.Equal(t, []string{"disease-expert"}, agentIDs(r.DiscoverByTags([]string{"advisory"})))
}

func TestDeregisterPurgesIndexes(t *testing.T) {
	r := New()
	card := testCard("disease-expert", "diagnose_disease")
	card.Skills = []core.Skill{{SkillID: "plant-pathology"}}
	card.Metadata.Tags = []string{"agriculture"}
	require.NoError(t, r.Register(card))

	assert.True(t, r.Deregister("disease-expert"))
	assert.False(t, r.Deregister("disease-expert"), "second deregister is a no-op")

	assert.Empty(t, r.DiscoverByCapability("diagnose_disease"))
	assert.Empty(t, r.DiscoverBySkill("plant-pathology"))
	assert.Empty(t, r.DiscoverByTags([]string{"agriculture"}))
	_, ok := r.Health("disease-expert")
	assert.False(t, ok)

	stats := r.Stats()
	assert.Equal(t, 0, stats.TotalAgents)
	assert.Equal(t, 0, stats.CapabilitiesCount)
	assert.Equal(t, 0, stats.SkillsCount)
	assert.Equal(t, 0, stats.TagsCount)
}

func TestDiscoverByCapability(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testCard("disease-expert", "diagnose_disease")))
	require.NoError(t, r.Register(testCard("vision-expert", "diagnose_disease", "classify_image")))
	require.NoError(t, r.Register(testCard("yield-predictor", "predict_yield")))

	assert.Equal(t, []string{"disease-expert", "vision-expert"},
		agentIDs(r.DiscoverByCapability("diagnose_disease")))
	assert.Equal(t, []string{"yield-predictor"},
		agentIDs(r.DiscoverByCapability("predict_yield")))
	assert.Empty(t, r.DiscoverByCapability("irrigate"))
}

func TestDiscoverBySkill(t *testing.T) {
	r := New()
	card := testCard("disease-expert", "diagnose_disease")
	card.Skills = []core.Skill{{SkillID: "plant-pathology"}, {SkillID: "image-analysis"}}
	require.NoError(t, r.Register(card))

	assert.Equal(t, []string{"disease-expert"}, agentIDs(r.DiscoverBySkill("plant-pathology")))
	assert.Equal(t, []string{"disease-expert"}, agentIDs(r.DiscoverBySkill("image-analysis")))
	assert.Empty(t, r.DiscoverBySkill("agronomy"))
}

func TestDiscoverByTagsUnion(t *testing.T) {
	r := New()
	a := testCard("disease-expert", "diagnose_disease")
	a.Metadata.Tags = []string{"diagnosis", "agriculture"}
	b := testCard("yield-predictor", "predict_yield")
	b.Metadata.Tags = []string{"forecasting", "agriculture"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	// OR semantics: any matching tag includes the agent once
	assert.Equal(t, []string{"disease-expert", "yield-predictor"},
		agentIDs(r.DiscoverByTags([]string{"diagnosis", "forecasting"})))
	assert.Equal(t, []string{"disease-expert", "yield-predictor"},
		agentIDs(r.DiscoverByTags([]string{"agriculture"})))
	assert.Equal(t, []string{"disease-expert"},
		agentIDs(r.DiscoverByTags([]string{"diagnosis"})))
	assert.Empty(t, r.DiscoverByTags([]string{"livestock"}))
	assert.Empty(t, r.DiscoverByTags(nil))
}

func TestListFilters(t *testing.T) {
	r := New()
	active := testCard("disease-expert", "diagnose_disease")
	active.Metadata.Category = "advisory"
	deprecated := testCard("old-advisor", "recommend_fertilizer")
	deprecated.Status = core.AgentStatusDeprecated
	deprecated.Metadata.Category = "advisory"
	require.NoError(t, r.Register(active))
	require.NoError(t, r.Register(deprecated))

	assert.Len(t, r.List("", ""), 2)
	assert.Equal(t, []string{"disease-expert"}, agentIDs(r.List("active", "")))
	assert.Equal(t, []string{"old-advisor"}, agentIDs(r.List("deprecated", "advisory")))
	assert.Empty(t, r.List("active", "forecasting"))
}

func TestStats(t *testing.T) {
	r := New()
	a := testCard("disease-expert", "diagnose_disease", "recommend_treatment")
	a.Skills = []core.Skill{{SkillID: "plant-pathology"}}
	a.Metadata.Tags = []string{"agriculture"}
	b := testCard("yield-predictor", "predict_yield")
	b.Status = core.AgentStatusInactive
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 1, stats.ActiveAgents)
	assert.Equal(t, 3, stats.CapabilitiesCount)
	assert.Equal(t, 1, stats.SkillsCount)
	assert.Equal(t, 1, stats.TagsCount)
	assert.Equal(t, map[string]int{"active": 1, "inactive": 1}, stats.AgentsByStatus)
}

func TestStoreHealthSequenceGuard(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testCard("disease-expert", "diagnose_disease")))

	newer := &core.HealthCheckResult{AgentID: "disease-expert", Status: core.HealthHealthy}
	older := &core.HealthCheckResult{AgentID: "disease-expert", Status: core.HealthUnhealthy}

	r.storeHealth(5, newer)
	r.storeHealth(3, older) // late arrival from an earlier probe

	got, ok := r.Health("disease-expert")
	require.True(t, ok)
	assert.Equal(t, core.HealthHealthy, got.Status)
}

func TestStoreHealthDroppedForUnknownAgent(t *testing.T) {
	r := New()
	r.storeHealth(1, &core.HealthCheckResult{AgentID: "ghost", Status: core.HealthHealthy})
	_, ok := r.Health("ghost")
	assert.False(t, ok)
}

func TestConcurrentRegistrationAndDiscovery(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(testCard(fmt.Sprintf("agent-%d", i), "shared_capability"))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.DiscoverByCapability("shared_capability")
			_ = r.Stats()
		}()
	}
	wg.Wait()

	assert.Len(t, r.DiscoverByCapability("shared_capability"), 20)
}

func TestRegistryClockStampsUpdatedAt(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(WithRegistryClock(fixedClock{fixed}))
	require.NoError(t, r.Register(testCard("disease-expert", "diagnose_disease")))

	card, _ := r.Get("disease-expert")
	assert.Equal(t, fixed, card.Metadata.UpdatedAt)
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }
