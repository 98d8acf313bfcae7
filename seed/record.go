package seed

// CompanyInput describes a company to seed. Companies are identified across
// runs by their name.
type CompanyInput struct {
	Name   string         `yaml:"name" validate:"required"`
	Traits map[string]int `yaml:"traits" validate:"dive,keys,trait,endkeys,min=0,max=10"`
}

// JobInput describes a job to seed. Jobs are identified across runs by their
// title.
//
// The company offering the job is referenced either by name (Company) or by
// identifier (CompanyID). Either way, the company must be part of the same
// seed batch.
type JobInput struct {
	Title       string         `yaml:"title" validate:"required"`
	Description string         `yaml:"description"`
	Company     string         `yaml:"company" validate:"required_without=CompanyID"`
	CompanyID   string         `yaml:"company_id"`
	Traits      map[string]int `yaml:"traits" validate:"dive,keys,trait,endkeys,min=0,max=10"`
}

// A Company is a company record with a resolved identifier.
type Company struct {
	ID     string
	Name   string
	Traits map[string]int
}

func (c Company) item() map[string]interface{} {
	return map[string]interface{}{
		"id":     c.ID,
		"name":   c.Name,
		"traits": traits(c.Traits),
	}
}

// A Job is a job record with resolved identifiers.
type Job struct {
	ID          string
	CompanyID   string
	Title       string
	Description string
	Traits      map[string]int
}

func (j Job) item() map[string]interface{} {
	return map[string]interface{}{
		"id":          j.ID,
		"companyId":   j.CompanyID,
		"title":       j.Title,
		"description": j.Description,
		"traits":      traits(j.Traits),
	}
}

func traits(t map[string]int) map[string]interface{} {
	out := make(map[string]interface{}, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
