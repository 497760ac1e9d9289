package gradebook

import (
	"math"
	"sort"
	"strings"

	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

// WeightTolerance - допустимое отклонение суммы весов от 1.0.
const WeightTolerance = 1e-6

// Weights - веса компонентов DS/TP/Exam внутри предмета.
type Weights struct {
	DS   float64
	TP   float64
	Exam float64
}

// Sum возвращает сумму весов.
func (w Weights) Sum() float64 {
	return w.DS + w.TP + w.Exam
}

// Validate проверяет, что веса неотрицательны и дают в сумме 1.0.
func (w Weights) Validate() error {
	if w.DS < 0 || w.TP < 0 || w.Exam < 0 {
		return ErrNegativeWeight
	}
	if math.Abs(w.Sum()-1.0) > WeightTolerance {
		return shared.ErrInvalidWeights
	}
	return nil
}

// Subject - предмет (matière) секции.
type Subject struct {
	ID      string
	Name    string
	Section string

	Semester Semester
	HasTP    bool
	Weights  Weights

	// Coefficient - общий коэффициент предмета в средневзвешенном балле.
	// Положительное число, не ограничено диапазоном [0,1].
	Coefficient float64
}

// Key возвращает ключ предмета.
func (s Subject) Key() SubjectKey {
	return SubjectKey{SubjectID: s.ID, Semester: s.Semester}
}

// NormalizedName возвращает имя предмета в нижнем регистре без пробелов по краям.
func (s Subject) NormalizedName() string {
	return NormalizeName(s.Name)
}

// Validate проверяет корректность предмета.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptySubjectID
	}
	if !s.Semester.IsValid() {
		return shared.ErrInvalidSemester
	}
	if s.Coefficient < 0 {
		return ErrNegativeCoefficient
	}
	return s.Weights.Validate()
}

// ComputeFinal вычисляет итоговую оценку из компонентов.
// Отсутствующий компонент считается нулём, вес TP без TP-части равен нулю.
// Результат округляется до двух знаков.
func (s Subject) ComputeFinal(ds, tp, exam *float64) float64 {
	tpWeight := s.Weights.TP
	if !s.HasTP {
		tpWeight = 0
	}
	final := valueOrZero(ds)*s.Weights.DS +
		valueOrZero(tp)*tpWeight +
		valueOrZero(exam)*s.Weights.Exam
	return Round2(final)
}

// NormalizeName приводит имя предмета к каноническому виду.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Round2 округляет до двух знаков после запятой.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - список предметов секции с индексами по ключу и имени.
type Catalog struct {
	subjects []Subject
	byKey    map[SubjectKey]int
	byName   map[string][]int
}

// NewCatalog создаёт каталог. Порядок: семестр, затем исходный порядок.
func NewCatalog(subjects []Subject) *Catalog {
	sorted := make([]Subject, len(subjects))
	copy(sorted, subjects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Semester < sorted[j].Semester
	})

	c := &Catalog{
		subjects: sorted,
		byKey:    make(map[SubjectKey]int, len(sorted)),
		byName:   make(map[string][]int),
	}
	for i, s := range sorted {
		c.byKey[s.Key()] = i
		name := s.NormalizedName()
		c.byName[name] = append(c.byName[name], i)
	}
	return c
}

// All возвращает все предметы.
func (c *Catalog) All() []Subject {
	result := make([]Subject, len(c.subjects))
	copy(result, c.subjects)
	return result
}

// Len возвращает число предметов.
func (c *Catalog) Len() int {
	return len(c.subjects)
}

// Find возвращает предмет по ключу.
func (c *Catalog) Find(key SubjectKey) (Subject, bool) {
	idx, ok := c.byKey[key]
	if !ok {
		return Subject{}, false
	}
	return c.subjects[idx], true
}

// FindByID ищет предмет по ID без учёта семестра (первое совпадение).
func (c *Catalog) FindByID(id string) (Subject, bool) {
	for _, s := range c.subjects {
		if s.ID == id {
			return s, true
		}
	}
	return Subject{}, false
}

// ByName возвращает все предметы с указанным именем (во всех семестрах).
func (c *Catalog) ByName(name string) []Subject {
	idxs := c.byName[NormalizeName(name)]
	if len(idxs) == 0 {
		return nil
	}
	result := make([]Subject, 0, len(idxs))
	for _, i := range idxs {
		result = append(result, c.subjects[i])
	}
	return result
}

// InSemester возвращает предметы указанного семестра.
func (c *Catalog) InSemester(sem Semester) []Subject {
	var result []Subject
	for _, s := range c.subjects {
		if s.Semester == sem {
			result = append(result, s)
		}
	}
	return result
}

// Split делит каталог на предметы первого и второго семестра.
// Всё, что не первый семестр, попадает во второй.
func (c *Catalog) Split() (first, second []Subject) {
	for _, s := range c.subjects {
		if s.Semester == SemesterOne {
			first = append(first, s)
		} else {
			second = append(second, s)
		}
	}
	return first, second
}
