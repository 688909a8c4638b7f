package recommend

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	ai "github.com/hrygo/likewise/plugin/ai"
	"github.com/hrygo/likewise/plugin/ai/tokenizer"
	"github.com/hrygo/likewise/plugin/ai/vector"
	"github.com/hrygo/likewise/store"
)

const testDims = 64

// memoryStore is an in-memory Store with the same contract as the
// postgres driver: filtered, scored, limited and deterministically ordered.
type memoryStore struct {
	items []*store.Item
}

func newMemoryStore(items ...*store.Item) *memoryStore {
	for _, item := range items {
		if item.Embedding == nil {
			item.Embedding = ai.HashEmbed(tokenizer.New().Terms(item.EmbeddingText()), testDims)
		}
	}
	return &memoryStore{items: items}
}

func (m *memoryStore) LexicalSearch(_ context.Context, opts *store.LexicalSearchOptions) ([]*store.ItemWithScore, error) {
	terms := tokenizer.New().Tokenize(opts.Query)
	if len(terms) == 0 {
		return []*store.ItemWithScore{}, nil
	}
	var hits []*store.ItemWithScore
	for _, item := range m.items {
		if !opts.Filters.Matches(item) {
			continue
		}
		doc := tokenizer.New().Set(item.Title + " " + item.Synopsis + " " + strings.Join(item.Tags, " "))
		matched := 0
		for _, t := range terms {
			if _, ok := doc[t]; ok {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, &store.ItemWithScore{Item: item, Score: float64(matched) / float64(len(terms))})
		}
	}
	return limitHits(hits, opts.Limit), nil
}

func (m *memoryStore) VectorSearch(_ context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error) {
	var hits []*store.ItemWithScore
	for _, item := range m.items {
		if len(item.Embedding) == 0 || !opts.Filters.Matches(item) {
			continue
		}
		hits = append(hits, &store.ItemWithScore{Item: item, Score: vector.Cosine(opts.Vector, item.Embedding)})
	}
	return limitHits(hits, opts.Limit), nil
}

func (m *memoryStore) RandomSample(_ context.Context, opts *store.RandomSampleOptions) ([]*store.Item, error) {
	var matched []*store.Item
	for _, item := range m.items {
		if opts.Filters.Matches(item) {
			matched = append(matched, item)
		}
	}
	r := rand.New(rand.NewPCG(7, 11))
	r.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (m *memoryStore) FindSeedByTitle(_ context.Context, find *store.FindSeed) (*store.ItemWithScore, error) {
	query := tokenizer.NormalizeKey(find.Query)
	var best *store.Item
	for _, item := range m.items {
		if find.Type != "" && item.Type != find.Type {
			continue
		}
		if tokenizer.NormalizeKey(item.Title) != query {
			continue
		}
		if best == nil || item.Popularity > best.Popularity {
			best = item
		}
	}
	if best == nil {
		return nil, nil
	}
	return &store.ItemWithScore{Item: best, Score: 1}, nil
}

func limitHits(hits []*store.ItemWithScore, limit int) []*store.ItemWithScore {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Item.Popularity != hits[j].Item.Popularity {
			return hits[i].Item.Popularity > hits[j].Item.Popularity
		}
		return hits[i].Item.ID < hits[j].Item.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []*store.ItemWithScore{}
	}
	return hits
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

type itemOpt func(*store.Item)

func withCreators(c ...string) itemOpt { return func(i *store.Item) { i.Creators = c } }
func withTags(t ...string) itemOpt { return func(i *store.Item) { i.Tags = t } }
func withFranchise(k string) itemOpt { return func(i *store.Item) { i.FranchiseKey = k } }
func withSynopsis(s string) itemOpt { return func(i *store.Item) { i.Synopsis = s } }
func withCast(c ...string) itemOpt { return func(i *store.Item) { i.Cast = c } }
func withRating(r float64) itemOpt { return func(i *store.Item) { i.Rating = &r } }
func withoutEmbedding() itemOpt { return func(i *store.Item) { i.Embedding = []float32{} } }

func newItem(id, title string, t store.ItemType, year int, popularity float64, genres []string, opts ...itemOpt) *store.Item {
	item := &store.Item{
		ID:         id,
		Title:      title,
		Type:       t,
		Year:       intPtr(year),
		Genres:     genres,
		Popularity: popularity,
	}
	for _, opt := range opts {
		opt(item)
	}
	return item
}

// catalogItems is a small mixed catalog around a few well-known titles.
func catalogItems() []*store.Item {
	scifi := []string{"Science Fiction", "Thriller", "Action"}
	return []*store.Item{
		newItem("m1", "Inception", store.ItemTypeMovie, 2010, 92, scifi,
			withCreators("Christopher Nolan"),
			withTags("dreams", "heist", "subconscious"),
			withCast("Leonardo DiCaprio", "Tom Hardy"),
			withSynopsis("A thief who steals corporate secrets through dream-sharing technology is given the task of planting an idea into the mind of a chief executive.")),
		newItem("m2", "Interstellar", store.ItemTypeMovie, 2014, 88, []string{"Science Fiction", "Drama", "Adventure"},
			withCreators("Christopher Nolan"),
			withTags("space", "time"),
			withSynopsis("Explorers travel through a wormhole in space in an attempt to ensure humanity's survival.")),
		newItem("m3", "The Matrix", store.ItemTypeMovie, 1999, 90, []string{"Science Fiction", "Action"},
			withCreators("Lana Wachowski", "Lilly Wachowski"),
			withFranchise("matrix"),
			withTags("simulation", "hacker", "dreams"),
			withSynopsis("A computer hacker learns that his reality is a simulation controlled by machines.")),
		newItem("m4", "The Matrix Reloaded", store.ItemTypeMovie, 2003, 75, []string{"Science Fiction", "Action"},
			withCreators("Lana Wachowski", "Lilly Wachowski"),
			withFranchise("matrix"),
			withSynopsis("Neo and the rebel leaders race to defend Zion from the machines inside the simulation.")),
		newItem("m5", "The Matrix Revolutions", store.ItemTypeMovie, 2003, 70, []string{"Science Fiction", "Action"},
			withCreators("Lana Wachowski", "Lilly Wachowski"),
			withFranchise("matrix"),
			withSynopsis("The war between humans and machines reaches its climax inside and outside the simulation.")),
		newItem("m6", "Tenet", store.ItemTypeMovie, 2020, 80, scifi,
			withCreators("Christopher Nolan"),
			withTags("time", "heist"),
			withSynopsis("A secret agent manipulates the flow of time to prevent a global catastrophe.")),
		newItem("m7", "Shutter Island", store.ItemTypeMovie, 2010, 78, []string{"Thriller", "Mystery"},
			withCreators("Martin Scorsese"),
			withCast("Leonardo DiCaprio"),
			withSynopsis("A marshal investigates the disappearance of a patient from a hospital for the criminally insane.")),
		newItem("m8", "Memento", store.ItemTypeMovie, 2000, 70, []string{"Thriller", "Mystery"},
			withCreators("Christopher Nolan"),
			withSynopsis("A man with short-term memory loss uses notes and tattoos to hunt for his wife's murderer.")),
		newItem("m9", "Source Code", store.ItemTypeMovie, 2011, 65, scifi,
			withCreators("Duncan Jones"),
			withSynopsis("A soldier wakes up in the body of a man on a train and relives the same eight minutes.")),
		newItem("a1", "Paprika", store.ItemTypeAnime, 2006, 40, []string{"Science Fiction", "Thriller", "Animation"},
			withCreators("Satoshi Kon"),
			withTags("dreams", "subconscious"),
			withSynopsis("A device that lets therapists enter patients' dreams is stolen and dreams start invading reality.")),
		newItem("a2", "Ghost in the Shell", store.ItemTypeAnime, 1995, 55, []string{"Science Fiction", "Action", "Animation"},
			withCreators("Mamoru Oshii"),
			withFranchise("ghost in the shell"),
			withSynopsis("A cyborg agent hunts a mysterious hacker known as the Puppet Master.")),
		newItem("t1", "Black Mirror", store.ItemTypeTV, 2011, 85, []string{"Science Fiction", "Drama"},
			withCreators("Charlie Brooker"),
			withTags("technology", "simulation"),
			withSynopsis("An anthology exploring the dark side of technology and simulation.")),
		newItem("t2", "Westworld", store.ItemTypeTV, 2016, 80, []string{"Science Fiction", "Western"},
			withSynopsis("Android hosts in a futuristic theme park begin to question their reality.")),
		newItem("b1", "Dune", store.ItemTypeBook, 1965, 60, []string{"Science Fiction", "Adventure"},
			withCreators("Frank Herbert"),
			withSynopsis("A noble family becomes embroiled in a war for control of the desert planet Arrakis.")),
		newItem("b2", "Do Androids Dream of Electric Sheep?", store.ItemTypeBook, 1968, 50, []string{"Science Fiction"},
			withCreators("Philip K. Dick"),
			withTags("dreams", "androids"),
			withoutEmbedding(),
			withSynopsis("A bounty hunter tracks down rogue androids in a post-apocalyptic San Francisco.")),
	}
}
