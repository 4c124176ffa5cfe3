package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stratsim-lab/stratsim/internal/store"
	"github.com/stratsim-lab/stratsim/internal/types"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

type StoreWriterTestSuite struct {
	suite.Suite
	store *store.SQLiteStore
}

func TestStoreWriterSuite(t *testing.T) {
	suite.Run(t, new(StoreWriterTestSuite))
}

func (suite *StoreWriterTestSuite) SetupTest() {
	barStore, err := store.NewSQLiteStore(filepath.Join(suite.T().TempDir(), "bars.db"), nil)
	suite.Require().NoError(err)
	suite.store = barStore
}

func (suite *StoreWriterTestSuite) TearDownTest() {
	suite.store.Close()
}

func (suite *StoreWriterTestSuite) TestNilStore() {
	writer := NewStoreWriter(nil)

	err := writer.Initialize()
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidWriter))
}

func (suite *StoreWriterTestSuite) TestWriteWithoutInitialize() {
	writer := NewStoreWriter(suite.store)

	err := writer.Write(testBar("AAPL", 1, 150))
	suite.Assert().True(errors.HasCode(err, errors.ErrCodeInvalidWriter))
}

func (suite *StoreWriterTestSuite) TestFullWorkflow() {
	writer := NewStoreWriter(suite.store)

	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	for day := 1; day <= 5; day++ {
		suite.Require().NoError(writer.Write(testBar("NVDA", day, 700+float64(day))))
	}

	path, err := writer.Finalize()
	suite.Require().NoError(err)
	suite.Assert().Empty(path)
	suite.Assert().Empty(writer.GetOutputPath())

	bars, err := suite.store.GetBars(context.Background(), "NVDA", nil, nil)
	suite.Require().NoError(err)
	suite.Require().Len(bars, 5)
	suite.Assert().Equal(701.0, bars[0].Close)
	suite.Assert().Equal(705.0, bars[4].Close)
}

func (suite *StoreWriterTestSuite) TestFlushesWhenBufferFills() {
	writer := NewStoreWriter(suite.store)
	suite.Require().NoError(writer.Initialize())
	defer writer.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < storeFlushSize+10; i++ {
		bar := types.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Symbol: "BTCUSDT",
			Open:   50000,
			High:   50000,
			Low:    50000,
			Close:  50000,
			Volume: 1,
		}
		suite.Require().NoError(writer.Write(bar))
	}

	// One flush already happened; the remainder is still buffered.
	bars, err := suite.store.GetBars(context.Background(), "BTCUSDT", nil, nil)
	suite.Require().NoError(err)
	suite.Assert().Len(bars, storeFlushSize)

	_, err = writer.Finalize()
	suite.Require().NoError(err)

	bars, err = suite.store.GetBars(context.Background(), "BTCUSDT", nil, nil)
	suite.Require().NoError(err)
	suite.Assert().Len(bars, storeFlushSize+10)
}

func (suite *StoreWriterTestSuite) TestCloseWithoutFinalizeDiscardsBuffer() {
	writer := NewStoreWriter(suite.store)
	suite.Require().NoError(writer.Initialize())

	suite.Require().NoError(writer.Write(testBar("AAPL", 1, 150)))
	suite.Require().NoError(writer.Close())

	bars, err := suite.store.GetBars(context.Background(), "AAPL", nil, nil)
	suite.Require().NoError(err)
	suite.Assert().Empty(bars)

	// The store itself stays usable after the writer closes.
	suite.Require().NoError(suite.store.SaveBars(context.Background(), []types.Bar{testBar("AAPL", 1, 150)}))
}
