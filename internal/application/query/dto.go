package query

import (
	"bytes"
	"encoding/json"

	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/ranking"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT DTO
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentDTO - оценка шансов студента по всем трекам.
type AssessmentDTO struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	Section     string `json:"section"`

	// Fingerprint - отпечаток данных секции, на которых сделан расчёт.
	Fingerprint string `json:"fingerprint"`

	Means     MeansDTO         `json:"means"`
	Tracks    []TrackResultDTO `json:"tracks"`
	Simulated bool             `json:"simulated"`
}

// MeansDTO - средние, из которых считаются баллы треков.
type MeansDTO struct {
	Average     float64 `json:"average"`
	Math        float64 `json:"math"`
	Info        float64 `json:"info"`
	Logic       float64 `json:"logic"`
	Electronics float64 `json:"electronics"`
	Circuits    float64 `json:"circuits"`
}

// TrackResultDTO - результат по одному треку.
type TrackResultDTO struct {
	Track       string  `json:"track"`
	Kind        string  `json:"kind"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
	CohortSize  int     `json:"cohort_size"`
	Quartile    int     `json:"quartile"`
	Benchmark   float64 `json:"benchmark,omitempty"`
	Eligibility float64 `json:"eligibility"`
	Eligible    bool    `json:"eligible"`
}

// NewAssessmentDTO переводит оценку движка в DTO.
func NewAssessmentDTO(a *orientation.Assessment, fingerprint string) *AssessmentDTO {
	dto := &AssessmentDTO{
		StudentID:   a.StudentID,
		DisplayName: a.DisplayName,
		Section:     a.Section,
		Fingerprint: fingerprint,
		Means:       toMeansDTO(a.Means),
		Tracks:      make([]TrackResultDTO, 0, len(a.Tracks)),
		Simulated:   a.Simulated,
	}
	for _, t := range a.Tracks {
		dto.Tracks = append(dto.Tracks, TrackResultDTO{
			Track:       string(t.Track),
			Kind:        t.Kind.String(),
			Score:       t.Score,
			Rank:        int(t.Rank),
			CohortSize:  t.CohortSize,
			Quartile:    int(t.Quartile),
			Benchmark:   t.Benchmark,
			Eligibility: t.Eligibility,
			Eligible:    t.Eligible,
		})
	}
	return dto
}

func toMeansDTO(m orientation.Means) MeansDTO {
	return MeansDTO{
		Average:     m.Average,
		Math:        m.Math,
		Info:        m.Info,
		Logic:       m.Logic,
		Electronics: m.Electronics,
		Circuits:    m.Circuits,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING DTO
// ══════════════════════════════════════════════════════════════════════════════

// RankingEntryDTO - строка ранжирования трека.
type RankingEntryDTO struct {
	Rank        int     `json:"rank"`
	StudentID   string  `json:"student_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

func toRankingEntries(entries []*ranking.Entry) []RankingEntryDTO {
	out := make([]RankingEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, RankingEntryDTO{
			Rank:        int(e.Rank),
			StudentID:   e.StudentID,
			DisplayName: e.DisplayName,
			Score:       e.Score,
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SIMULATION INPUT
// ══════════════════════════════════════════════════════════════════════════════

// GradeText - введённая оценка. В JSON принимается строка или число;
// нормализация (запятая, диапазон, мусор) выполняется при расчёте.
type GradeText string

// UnmarshalJSON implements json.Unmarshaler.
func (g *GradeText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*g = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = GradeText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// Нечисловой ввод трактуется как отсутствующая оценка.
		*g = ""
		return nil
	}
	*g = GradeText(n.String())
	return nil
}
