package orientation

import (
	"fmt"
	"strings"

	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// TrackID - идентификатор специализации.
type TrackID string

const (
	// TrackGL - génie logiciel (трек A).
	TrackGL TrackID = "GL"
	// TrackRT - réseaux et télécoms (трек B).
	TrackRT TrackID = "RT"
	// TrackIIA - informatique industrielle et automatique (трек C).
	TrackIIA TrackID = "IIA"
	// TrackIMI - instrumentation et maintenance industrielle (трек D, пороговый).
	TrackIMI TrackID = "IMI"
)

// ParseTrackID разбирает идентификатор трека без учёта регистра.
func ParseTrackID(s string) (TrackID, error) {
	id := TrackID(strings.ToUpper(strings.TrimSpace(s)))
	switch id {
	case TrackGL, TrackRT, TrackIIA, TrackIMI:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownTrack, s)
	}
}

// Kind - способ оценки шансов для трека.
type Kind int

const (
	// KindRanked - квартиль ранга × затухание × отношение к бенчмарку.
	KindRanked Kind = iota
	// KindThreshold - фиксированное значение при mg ≥ порога.
	KindThreshold
)

// String возвращает строковое представление вида трека.
func (k Kind) String() string {
	switch k {
	case KindRanked:
		return "ranked"
	case KindThreshold:
		return "threshold"
	default:
		return "unknown"
	}
}

// Formula вычисляет балл трека из средних.
type Formula func(m Means) float64

// VerdictRule - правило быстрой оценки OK/No в режиме симуляции.
type VerdictRule struct {
	// Share - доля лучших студентов, проходящих по треку. Ранг плотный с
	// пропусками: равные средние делят место.
	Share float64

	// AcceptIf - трек проходит автоматически, если прошёл любой из этих.
	AcceptIf []TrackID
}

// Track - дескриптор трека для единого конвейера.
type Track struct {
	ID      TrackID
	Name    string
	Kind    Kind
	Formula Formula

	// Bases - базовая вероятность по квартилям Q1..Q4.
	Bases QuartileBases

	Verdict VerdictRule
}

// Score вычисляет балл трека.
func (t Track) Score(m Means) float64 {
	if t.Formula == nil {
		return m.Average
	}
	return t.Formula(m)
}

// FormulaGL = 2·mg + math + 2·info + logic.
func FormulaGL(m Means) float64 {
	return 2.0*m.Average + m.Math + 2.0*m.Info + m.Logic
}

// FormulaRT = 2·mg + math + info + logic.
func FormulaRT(m Means) float64 {
	return 2.0*m.Average + m.Math + 1.0*m.Info + m.Logic
}

// FormulaIIA = 2·mg + math + info + logic + (electronique + circuits)/2.
func FormulaIIA(m Means) float64 {
	return 2.0*m.Average + m.Math + m.Info + m.Logic + (m.Electronics+m.Circuits)/2.0
}

// FormulaIMI = mg.
func FormulaIMI(m Means) float64 {
	return m.Average
}

// DefaultTracks возвращает четыре трека в порядке отображения.
func DefaultTracks() []Track {
	return []Track{
		{
			ID:      TrackGL,
			Name:    "Génie Logiciel",
			Kind:    KindRanked,
			Formula: FormulaGL,
			Bases:   QuartileBases{100, 25, 0, 0},
			Verdict: VerdictRule{Share: 0.25},
		},
		{
			ID:      TrackRT,
			Name:    "Réseaux et Télécommunications",
			Kind:    KindRanked,
			Formula: FormulaRT,
			Bases:   QuartileBases{100, 75, 0, 0},
			Verdict: VerdictRule{Share: 0.5},
		},
		{
			ID:      TrackIIA,
			Name:    "Informatique Industrielle et Automatique",
			Kind:    KindRanked,
			Formula: FormulaIIA,
			Bases:   QuartileBases{100, 75, 50, 0},
			Verdict: VerdictRule{Share: 0.5, AcceptIf: []TrackID{TrackGL, TrackRT}},
		},
		{
			ID:      TrackIMI,
			Name:    "Instrumentation et Maintenance Industrielle",
			Kind:    KindThreshold,
			Formula: FormulaIMI,
			Bases:   QuartileBases{100, 75, 0, 0},
		},
	}
}
