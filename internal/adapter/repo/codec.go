package repo

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func encodePayload(p domain.Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("repo: encode payload: %w", err)
	}
	return data, nil
}

func encodeResult(r *domain.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("repo: encode result: %w", err)
	}
	return data, nil
}

func decodeJSONColumns(job *domain.Job, payload, result []byte) error {
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return fmt.Errorf("repo: decode payload: %w", err)
		}
	}
	if len(result) > 0 && string(result) != "null" {
		var r domain.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return fmt.Errorf("repo: decode result: %w", err)
		}
		job.Result = &r
	}
	return nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		r.Creatives = append([]domain.Creative(nil), j.Result.Creatives...)
		c.Result = &r
	}
	c.Payload.Formats = append([]domain.Format(nil), j.Payload.Formats...)
	c.Payload.ImageDirectives = append([]domain.ImageDirective(nil), j.Payload.ImageDirectives...)
	return &c
}
