package reconcile

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/events"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

// memState is everything the in-memory store holds. It is copied on transaction start and
// restored on rollback.
type memState struct {
	seq          int
	vintages     map[int]*models.Vintage
	provenances  map[string]*models.Provenance
	regions      map[string]*models.Region
	departements map[string]*models.Departement
	communes     map[string]*models.Commune
	epcis        map[string]*models.Epci
	attachments  map[string]bool
	dataPoints   map[string]*models.DataPoint
	transactions int
	rolledBack   int
}

func newMemState() *memState {
	return &memState{
		vintages:     map[int]*models.Vintage{},
		provenances:  map[string]*models.Provenance{},
		regions:      map[string]*models.Region{},
		departements: map[string]*models.Departement{},
		communes:     map[string]*models.Commune{},
		epcis:        map[string]*models.Epci{},
		attachments:  map[string]bool{},
		dataPoints:   map[string]*models.DataPoint{},
	}
}

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (s *memState) clone() *memState {
	attachments := make(map[string]bool, len(s.attachments))
	for k, v := range s.attachments {
		attachments[k] = v
	}
	return &memState{
		seq:          s.seq,
		vintages:     cloneMap(s.vintages),
		provenances:  cloneMap(s.provenances),
		regions:      cloneMap(s.regions),
		departements: cloneMap(s.departements),
		communes:     cloneMap(s.communes),
		epcis:        cloneMap(s.epcis),
		attachments:  attachments,
		dataPoints:   cloneMap(s.dataPoints),
		transactions: s.transactions,
		rolledBack:   s.rolledBack,
	}
}

// memStore implements every store interface over one memState.
type memStore struct {
	state *memState
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) nextID(prefix string) string {
	m.state.seq++
	return fmt.Sprintf("%s-%d", prefix, m.state.seq)
}

func (m *memStore) attach(level models.Level, entityID, vintageID string) bool {
	key := level.String() + "|" + entityID + "|" + vintageID
	present := m.state.attachments[key]
	m.state.attachments[key] = true
	return present
}

func (m *memStore) attached(level models.Level, entityID, vintageID string) bool {
	return m.state.attachments[level.String()+"|"+entityID+"|"+vintageID]
}

// Tx snapshots the state and restores it when fn fails.
func (m *memStore) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx); err != nil {
		snapshot.transactions++
		snapshot.rolledBack++
		m.state = snapshot
		return err
	}
	m.state.transactions++
	return nil
}

func (m *memStore) vintageYears(level models.Level, entityID string) []int {
	var years []int
	for year, v := range m.state.vintages {
		if m.attached(level, entityID, v.ID) {
			years = append(years, year)
		}
	}
	return years
}

func (m *memStore) regionByCode(insee string) *models.Region {
	for _, r := range m.state.regions {
		if r.Insee == insee {
			return r
		}
	}
	return nil
}

func (m *memStore) departementByCode(insee string) *models.Departement {
	for _, d := range m.state.departements {
		if d.Insee == insee {
			return d
		}
	}
	return nil
}

func (m *memStore) epciBySiren(siren string) *models.Epci {
	for _, e := range m.state.epcis {
		if e.Siren == siren {
			return e
		}
	}
	return nil
}

func (m *memStore) communeByCode(insee string) *models.Commune {
	for _, c := range m.state.communes {
		if c.Insee == insee {
			return c
		}
	}
	return nil
}

func (m *memStore) dataPointsFor(level models.Level, subjectID string) []*models.DataPoint {
	var out []*models.DataPoint
	for key, dp := range m.state.dataPoints {
		if len(key) > len(level) && key[:len(level)] == string(level) && dp.SubjectID == subjectID {
			out = append(out, dp)
		}
	}
	return out
}

// vintage registry

func (m *memStore) GetOrCreateVintage(_ context.Context, year int) (*models.Vintage, error) {
	if v, ok := m.state.vintages[year]; ok {
		return v, nil
	}
	v := &models.Vintage{ID: m.nextID("vintage"), Year: year}
	m.state.vintages[year] = v
	return v, nil
}

func (m *memStore) FindVintage(_ context.Context, year int) (*models.Vintage, error) {
	return m.state.vintages[year], nil
}

func (m *memStore) GetOrCreateProvenance(_ context.Context, title, url string, vintage *models.Vintage) (*models.Provenance, error) {
	key := title + "|" + url + "|" + vintage.ID
	if p, ok := m.state.provenances[key]; ok {
		return p, nil
	}
	p := &models.Provenance{ID: m.nextID("provenance"), Title: title, URL: url, VintageID: vintage.ID}
	m.state.provenances[key] = p
	return p, nil
}

type memRegions struct{ *memStore }

func (m memRegions) Upsert(_ context.Context, region models.Region) (*models.UpsertResult[models.Region], error) {
	key := region.Name + "|" + region.Insee
	if existing, ok := m.state.regions[key]; ok {
		existing.Slug = region.Slug
		return &models.UpsertResult[models.Region]{Entity: existing}, nil
	}
	region.ID = m.nextID("region")
	m.state.regions[key] = &region
	return &models.UpsertResult[models.Region]{Entity: &region, IsNew: true}, nil
}

func (m memRegions) AddVintage(_ context.Context, regionID, vintageID string) (bool, error) {
	return m.attach(models.LevelRegion, regionID, vintageID), nil
}

func (m memRegions) FindByCodeAndVintage(_ context.Context, insee, vintageID string) (*models.Region, error) {
	for _, r := range m.state.regions {
		if r.Insee == insee && m.attached(models.LevelRegion, r.ID, vintageID) {
			return r, nil
		}
	}
	return nil, nil
}

func (m memRegions) UpdateRegistry(_ context.Context, id, siren string, category *string) error {
	for _, r := range m.state.regions {
		if r.ID == id {
			r.Siren = siren
			r.Category = category
		}
	}
	return nil
}

type memDepartements struct{ *memStore }

func (m memDepartements) Upsert(_ context.Context, dep models.Departement) (*models.UpsertResult[models.Departement], error) {
	key := dep.Name + "|" + dep.Insee
	if existing, ok := m.state.departements[key]; ok {
		existing.Slug = dep.Slug
		existing.RegionID = dep.RegionID
		return &models.UpsertResult[models.Departement]{Entity: existing}, nil
	}
	dep.ID = m.nextID("departement")
	m.state.departements[key] = &dep
	return &models.UpsertResult[models.Departement]{Entity: &dep, IsNew: true}, nil
}

func (m memDepartements) AddVintage(_ context.Context, departementID, vintageID string) (bool, error) {
	return m.attach(models.LevelDepartement, departementID, vintageID), nil
}

func (m memDepartements) FindByCodeAndVintage(_ context.Context, insee, vintageID string) (*models.Departement, error) {
	for _, d := range m.state.departements {
		if d.Insee == insee && m.attached(models.LevelDepartement, d.ID, vintageID) {
			return d, nil
		}
	}
	return nil, nil
}

func (m memDepartements) UpdateRegistry(_ context.Context, id, siren string, category *string) error {
	for _, d := range m.state.departements {
		if d.ID == id {
			d.Siren = siren
			d.Category = category
		}
	}
	return nil
}

type memCommunes struct{ *memStore }

func (m memCommunes) Upsert(_ context.Context, commune models.Commune) (*models.UpsertResult[models.Commune], error) {
	key := commune.Name + "|" + commune.Insee
	if existing, ok := m.state.communes[key]; ok {
		existing.Slug = commune.Slug
		existing.DepartementID = commune.DepartementID
		return &models.UpsertResult[models.Commune]{Entity: existing}, nil
	}
	commune.ID = m.nextID("commune")
	m.state.communes[key] = &commune
	return &models.UpsertResult[models.Commune]{Entity: &commune, IsNew: true}, nil
}

func (m memCommunes) AddVintage(_ context.Context, communeID, vintageID string) (bool, error) {
	return m.attach(models.LevelCommune, communeID, vintageID), nil
}

func (m memCommunes) FindByCodeAndVintage(_ context.Context, insee, vintageID string) (*models.Commune, error) {
	for _, c := range m.state.communes {
		if c.Insee == insee && m.attached(models.LevelCommune, c.ID, vintageID) {
			return c, nil
		}
	}
	return nil, nil
}

func (m memCommunes) FindBySirenAndVintage(_ context.Context, siren, vintageID string) (*models.Commune, error) {
	for _, c := range m.state.communes {
		if c.Siren == siren && m.attached(models.LevelCommune, c.ID, vintageID) {
			return c, nil
		}
	}
	return nil, nil
}

func (m memCommunes) SetEpci(_ context.Context, communeID, epciID string) error {
	for _, c := range m.state.communes {
		if c.ID == communeID {
			id := epciID
			c.EpciID = &id
		}
	}
	return nil
}

func (m memCommunes) UpdateRegistry(_ context.Context, communeID, siren string, population *int) error {
	for _, c := range m.state.communes {
		if c.ID == communeID {
			c.Siren = siren
			c.Population = population
		}
	}
	return nil
}

type memEpcis struct{ *memStore }

func (m memEpcis) Upsert(_ context.Context, epci models.Epci) (*models.UpsertResult[models.Epci], error) {
	key := epci.Name + "|" + epci.EpciType + "|" + epci.Siren
	if existing, ok := m.state.epcis[key]; ok {
		existing.Slug = epci.Slug
		return &models.UpsertResult[models.Epci]{Entity: existing}, nil
	}
	epci.ID = m.nextID("epci")
	m.state.epcis[key] = &epci
	return &models.UpsertResult[models.Epci]{Entity: &epci, IsNew: true}, nil
}

func (m memEpcis) AddVintage(_ context.Context, epciID, vintageID string) (bool, error) {
	return m.attach(models.LevelEpci, epciID, vintageID), nil
}

type memDataPoints struct {
	*memStore
	level models.Level
}

func (m memDataPoints) Upsert(_ context.Context, dp models.DataPoint) (*models.UpsertResult[models.DataPoint], error) {
	key := m.level.String() + "|" + dp.SubjectID + "|" + dp.VintageID + "|" + dp.Datacode
	if existing, ok := m.state.dataPoints[key]; ok {
		existing.Value = dp.Value
		existing.Datatype = dp.Datatype
		existing.ProvenanceID = dp.ProvenanceID
		return &models.UpsertResult[models.DataPoint]{Entity: existing}, nil
	}
	dp.ID = m.nextID("datapoint")
	m.state.dataPoints[key] = &dp
	return &models.UpsertResult[models.DataPoint]{Entity: &dp, IsNew: true}, nil
}

// remote catalog and downloads

type fakeLister struct {
	resources map[string][]catalog.Resource
}

func (f *fakeLister) ListResources(_ context.Context, datasetID string) ([]catalog.Resource, error) {
	res, ok := f.resources[datasetID]
	if !ok {
		return nil, fmt.Errorf("dataset %s not found", datasetID)
	}
	return res, nil
}

type fakeFetcher struct {
	payloads map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	p, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", url)
	}
	return p, nil
}

type recordingGuard struct {
	keys []string
	err  error
}

func (g *recordingGuard) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	g.keys = append(g.keys, key)
	if g.err != nil {
		return g.err
	}
	return fn(ctx)
}

type recordingPublisher struct {
	events []events.LevelReconciled
	err    error
}

func (p *recordingPublisher) EmitLevelReconciled(_ context.Context, event events.LevelReconciled) error {
	p.events = append(p.events, event)
	return p.err
}

// harness wires an engine over the fakes.
type harness struct {
	store     *memStore
	lister    *fakeLister
	fetcher   *fakeFetcher
	guard     *recordingGuard
	publisher *recordingPublisher
	engine    *Engine
}

const registryDatasetID = "registry-dataset"

var communeRegistryPattern = regexp.MustCompile(`Registre des communes (?P<year>\d{4})`)

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:     newMemStore(),
		lister:    &fakeLister{resources: map[string][]catalog.Resource{}},
		fetcher:   &fakeFetcher{payloads: map[string][]byte{}},
		guard:     &recordingGuard{},
		publisher: &recordingPublisher{},
	}

	logger := logging.NewNopLogger()
	sources := DefaultSources()
	sources.CommuneRegistryDatasetID = registryDatasetID
	sources.CommuneRegistryPattern = communeRegistryPattern

	h.engine = NewEngine(Deps{
		Resolver:        catalog.NewResolver(h.lister, logger),
		Extractor:       extractor.NewExtractor(h.fetcher, logger),
		Vintages:        h.store,
		Regions:         memRegions{h.store},
		Departements:    memDepartements{h.store},
		Communes:        memCommunes{h.store},
		Epcis:           memEpcis{h.store},
		RegionData:      memDataPoints{h.store, models.LevelRegion},
		DepartementData: memDataPoints{h.store, models.LevelDepartement},
		Tx:              h.store.Tx,
		Guard:           h.guard,
		Publisher:       h.publisher,
		Sources:         sources,
		Logger:          logger,
	})
	return h
}

// publish registers a catalog resource and the payload behind its URL.
func (h *harness) publish(datasetID, title, url string, payload []byte) {
	h.lister.resources[datasetID] = append(h.lister.resources[datasetID], catalog.Resource{Title: title, URL: url})
	h.fetcher.payloads[url] = payload
}

func zipOf(t *testing.T, member, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(member)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}
