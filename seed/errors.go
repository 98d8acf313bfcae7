package seed

import "fmt"

// A SeedIntegrityError is returned when a job refers to a company that is not
// part of the seed batch.
type SeedIntegrityError struct {
	Job       string // Title of the job.
	Company   string // Company name the job refers to, if set.
	CompanyID string // Company id the job refers to, if set.
}

func (e *SeedIntegrityError) Error() string {
	if e.CompanyID != "" {
		return fmt.Sprintf("job %q refers to company id %q, which is not in the batch", e.Job, e.CompanyID)
	}
	return fmt.Sprintf("job %q refers to company %q, which is not in the batch", e.Job, e.Company)
}
