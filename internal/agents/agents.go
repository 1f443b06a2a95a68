package agents

import (
	"context"
	"fmt"

	"github.com/jh941213/storm-orchestrator/internal/llm"
)

// Agent answers a simple query within one company domain.
type Agent interface {
	Name() string
	Handle(ctx context.Context, query string) (string, error)
}

// Registry holds the domain agents keyed by classifier agent name.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry builds the standard agent set backed by the given provider.
func NewRegistry(provider llm.Provider) *Registry {
	r := &Registry{agents: make(map[string]Agent)}
	for _, a := range []Agent{
		newDomainAgent(provider, "hr", hrData,
			"You are an HR assistant. Answer questions about vacation, payroll and HR policy using only the reference data."),
		newDomainAgent(provider, "bulletin", bulletinData,
			"You are a bulletin board assistant. Answer questions about company notices and announcements using only the reference data."),
		newDomainAgent(provider, "project", projectData,
			"You are a project management assistant. Answer questions about project status and schedules using only the reference data."),
		newDomainAgent(provider, "company", companyData,
			"You are a company information assistant. Answer questions about the company, its organisation and locations using only the reference data."),
	} {
		r.agents[a.Name()] = a
	}
	return r
}

// Lookup returns the agent for name, or nil when no such agent exists.
func (r *Registry) Lookup(name string) Agent {
	return r.agents[name]
}

// Names lists the registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for _, a := range []string{"hr", "bulletin", "project", "company"} {
		if _, ok := r.agents[a]; ok {
			names = append(names, a)
		}
	}
	return names
}

// domainAgent answers from a fixed reference dataset. The datasets stand in
// for the company systems a deployment would query.
type domainAgent struct {
	llm    llm.Provider
	name   string
	data   string
	system string
}

func newDomainAgent(provider llm.Provider, name, data, system string) *domainAgent {
	return &domainAgent{llm: provider, name: name, data: data, system: system}
}

func (a *domainAgent) Name() string { return a.name }

func (a *domainAgent) Handle(ctx context.Context, query string) (string, error) {
	answer, err := a.llm.Complete(ctx, []llm.Message{
		llm.System(a.system + "\n\nReference data:\n" + a.data),
		llm.User(query),
	})
	if err != nil {
		return "", fmt.Errorf("%s agent: %w", a.name, err)
	}
	return answer, nil
}

const hrData = `Vacation policy: 15 days annual leave, carried over up to 5 days.
Sick leave: unlimited with a doctor's note after 3 consecutive days.
Payroll: salaries paid on the 25th of each month.
Remote work: up to 3 days per week with manager approval.`

const bulletinData = `[2026-08-21] Office network maintenance this Saturday 09:00-13:00.
[2026-08-14] New security badge system rollout starts next month.
[2026-08-02] Quarterly all-hands scheduled for September 10th.`

const projectData = `Project Atlas: data platform migration, phase 2 of 3, on track, ships Q4.
Project Beacon: mobile app redesign, in QA, release candidate next sprint.
Project Cove: internal tooling consolidation, paused pending budget review.`

const companyData = `Founded 2015, headquartered in Seoul with offices in Tokyo and Singapore.
Around 450 employees across engineering, product, sales and operations.
Main products: enterprise data analytics suite and a managed ML platform.`
