// Package orientation реализует движок ориентации: средневзвешенный балл,
// баллы специализаций (треков), ранжирование в когорте и оценку шансов
// поступления (eligibility).
//
// Все функции пакета - чистые вычисления над снимком когорты в памяти.
// Отсутствующие данные не вызывают ошибок: они превращаются в 0,
// пропуск предмета или худший ранг.
package orientation

import (
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM
// ══════════════════════════════════════════════════════════════════════════════

// Канонические имена предметов, участвующих в формулах треков.
const (
	SubjectAnalyse1    = "analyse1"
	SubjectAnalyse2    = "analyse2"
	SubjectAlgebre1    = "algebre1"
	SubjectAlgebre2    = "algebre2"
	SubjectAlgo1       = "algo1"
	SubjectAlgo2       = "algo2"
	SubjectProg1       = "prog1"
	SubjectProg2       = "prog2"
	SubjectLogic       = "sys logique"
	SubjectElectronics = "electronique"
	SubjectCircuits    = "circuits"
)

// MathSubjects - предметы математического среднего.
var MathSubjects = []string{SubjectAnalyse1, SubjectAnalyse2, SubjectAlgebre1, SubjectAlgebre2}

// subjectAliases - альтернативные имена в порядке приоритета.
var subjectAliases = map[string][]string{
	SubjectProg1:    {"prog1", "programmation"},
	SubjectCircuits: {"circuit", "circuits"},
}

// namesFor возвращает имена для поиска канонического предмета.
func namesFor(canonical string) []string {
	if names, ok := subjectAliases[canonical]; ok {
		return names
	}
	return []string{canonical}
}

// CanonicalSubject приводит имя (или алиас) предмета к каноническому.
func CanonicalSubject(name string) string {
	n := gradebook.NormalizeName(name)
	for canonical, aliases := range subjectAliases {
		for _, a := range aliases {
			if a == n {
				return canonical
			}
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// MEANS
// ══════════════════════════════════════════════════════════════════════════════

// Means - входные данные формул треков.
type Means struct {
	// Average - средневзвешенный балл (mg).
	Average float64

	Math        float64
	Info        float64
	Logic       float64
	Electronics float64
	Circuits    float64
}

// ComputeMeans вычисляет mg и под-средние студента.
// В под-средних отсутствующая оценка считается нулём - в отличие от mg,
// где предмет без оценки просто пропускается.
func ComputeMeans(s *gradebook.Student, catalog *gradebook.Catalog, overlay *gradebook.Overlay) Means {
	finals := func(canonical string) float64 {
		return bestFinal(s, catalog, overlay, namesFor(canonical)...)
	}

	var mathSum float64
	for _, name := range MathSubjects {
		mathSum += finals(name)
	}

	return Means{
		Average:     WeightedAverage(s, catalog.All(), overlay),
		Math:        mathSum / float64(len(MathSubjects)),
		Info:        InfoMean(finals(SubjectAlgo1), finals(SubjectAlgo2), finals(SubjectProg1), finals(SubjectProg2)),
		Logic:       finals(SubjectLogic),
		Electronics: finals(SubjectElectronics),
		Circuits:    finals(SubjectCircuits),
	}
}

// InfoMean - (2·algo1 + 2·algo2 + prog1 + prog2) / 6.
func InfoMean(algo1, algo2, prog1, prog2 float64) float64 {
	return (2*algo1 + 2*algo2 + prog1 + prog2) / 6.0
}

// bestFinal возвращает лучшую итоговую оценку по первому имени,
// для которого нашлась хотя бы одна оценка. Иначе 0.
func bestFinal(s *gradebook.Student, catalog *gradebook.Catalog, overlay *gradebook.Overlay, names ...string) float64 {
	for _, name := range names {
		if v, ok := BestFinal(s, catalog, overlay, name); ok {
			return v
		}
	}
	return 0
}

// BestFinal возвращает максимум итоговых оценок предмета по всем семестрам.
// ok=false, если ни в одном семестре оценки нет.
func BestFinal(s *gradebook.Student, catalog *gradebook.Catalog, overlay *gradebook.Overlay, name string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, subj := range catalog.ByName(name) {
		rec, ok := overlay.Resolve(s, subj.Key())
		if !ok || !rec.HasFinal() {
			continue
		}
		if !found || *rec.Final > best {
			best = *rec.Final
			found = true
		}
	}
	return best, found
}
