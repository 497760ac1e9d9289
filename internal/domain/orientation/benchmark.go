package orientation

import "sort"

// DefaultTargetAverage - целевой mg при расчёте бенчмарка.
const DefaultTargetAverage = 10.0

// YearAverages - средние по предметам за один год. Ключи - имена
// после gradebook.NormalizeName.
type YearAverages map[string]float64

// lookup ищет предмет по каноническому имени, затем по алиасам в порядке
// приоритета.
func (y YearAverages) lookup(canonical string) (float64, bool) {
	for _, name := range namesFor(canonical) {
		if v, ok := y[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// TrackHistory - исторические средние одного трека по годам.
type TrackHistory map[int]YearAverages

// Years возвращает годы по возрастанию.
func (h TrackHistory) Years() []int {
	years := make([]int, 0, len(h))
	for y := range h {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// SubjectMean - средняя предмета по всем годам. Отсутствие в году считается нулём.
func (h TrackHistory) SubjectMean(canonical string) float64 {
	if len(h) == 0 {
		return 0
	}
	var sum float64
	for _, year := range h {
		v, _ := year.lookup(canonical)
		sum += v
	}
	return sum / float64(len(h))
}

// Subjects возвращает канонические имена всех предметов истории (по алфавиту).
func (h TrackHistory) Subjects() []string {
	seen := make(map[string]struct{})
	for _, year := range h {
		for name := range year {
			seen[CanonicalSubject(name)] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Means возвращает средние истории в форме входа формулы трека.
func (h TrackHistory) Means(targetAverage float64) Means {
	var mathSum float64
	for _, name := range MathSubjects {
		mathSum += h.SubjectMean(name)
	}
	return Means{
		Average: targetAverage,
		Math:    mathSum / float64(len(MathSubjects)),
		Info: InfoMean(
			h.SubjectMean(SubjectAlgo1),
			h.SubjectMean(SubjectAlgo2),
			h.SubjectMean(SubjectProg1),
			h.SubjectMean(SubjectProg2),
		),
		Logic:       h.SubjectMean(SubjectLogic),
		Electronics: h.SubjectMean(SubjectElectronics),
		Circuits:    h.SubjectMean(SubjectCircuits),
	}
}

// History - исторические данные по всем трекам.
type History map[TrackID]TrackHistory

// Benchmarks - исторический эталонный балл по трекам.
type Benchmarks map[TrackID]float64

// For возвращает бенчмарк трека (0, если его нет).
func (b Benchmarks) For(id TrackID) float64 {
	return b[id]
}

// DeriveBenchmarks применяет формулу каждого трека с ранжированием к
// историческим средним с целевым mg. Треки без истории не получают бенчмарк.
func DeriveBenchmarks(tracks []Track, history History, targetAverage float64) Benchmarks {
	out := make(Benchmarks, len(tracks))
	for _, t := range tracks {
		if t.Kind != KindRanked {
			continue
		}
		h, ok := history[t.ID]
		if !ok || len(h) == 0 {
			continue
		}
		out[t.ID] = t.Score(h.Means(targetAverage))
	}
	return out
}
