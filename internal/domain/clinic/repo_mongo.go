package clinic

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names match the ones the clinic's existing documents live in.
const (
	PatientCollection = "patients"
	PaymentCollection = "payments"
)

// MongoIndexes lists the indexes the aggregation and payment lookups rely on.
func MongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		PatientCollection: {
			{Keys: bson.D{{Key: "dateOfVisit", Value: -1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		PaymentCollection: {
			{Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "date", Value: -1}}},
		},
	}
}

type patientDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Address     string             `bson:"address"`
	Mobile      string             `bson:"mobile"`
	Disease     string             `bson:"disease"`
	TotalCost   int64              `bson:"totalCost"`
	DateOfVisit time.Time          `bson:"dateOfVisit"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d patientDoc) toModel() Patient {
	return Patient{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Address:     d.Address,
		Mobile:      d.Mobile,
		Disease:     d.Disease,
		TotalCost:   d.TotalCost,
		DateOfVisit: d.DateOfVisit,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type paymentDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	PatientID primitive.ObjectID `bson:"patientId"`
	Amount    int64              `bson:"amount"`
	Date      time.Time          `bson:"date"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d paymentDoc) toModel() Payment {
	return Payment{
		ID:        d.ID.Hex(),
		PatientID: d.PatientID.Hex(),
		Amount:    d.Amount,
		Date:      d.Date,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// aggregatedDoc is one $lookup result. The inlined patient must be an
// exported field: the bson codec skips unexported ones, embedded or not.
type aggregatedDoc struct {
	Patient  patientDoc   `bson:",inline"`
	Payments []paymentDoc `bson:"payments"`
}

func (d aggregatedDoc) toModel() PatientWithPayments {
	pw := PatientWithPayments{Patient: d.Patient.toModel(), Payments: make([]Payment, 0, len(d.Payments))}
	for _, pd := range d.Payments {
		pw.Payments = append(pw.Payments, pd.toModel())
	}
	SortPaymentsForDisplay(pw.Payments)
	return pw
}

func parseObjectID(field, id string) (primitive.ObjectID, error) {
	if err := validateID(field, id); err != nil {
		return primitive.NilObjectID, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, invalid(field, "malformed id")
	}
	return oid, nil
}

// mongoNow truncates to the millisecond precision BSON dates carry.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// =========== Patient Repository ===========

type patientRepoMongo struct {
	patients *mongo.Collection
}

func NewPatientRepoMongo(db *mongo.Database) PatientRepository {
	return &patientRepoMongo{patients: db.Collection(PatientCollection)}
}

func (r *patientRepoMongo) decodeOne(res *mongo.SingleResult, op string) (*Patient, error) {
	var d patientDoc
	if err := res.Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("patient")
		}
		return nil, persistence(op, err)
	}
	p := d.toModel()
	return &p, nil
}

func (r *patientRepoMongo) Create(ctx context.Context, p *Patient) error {
	now := mongoNow()
	d := patientDoc{
		ID:          primitive.NewObjectID(),
		Name:        p.Name,
		Address:     p.Address,
		Mobile:      p.Mobile,
		Disease:     p.Disease,
		TotalCost:   p.TotalCost,
		DateOfVisit: p.DateOfVisit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := r.patients.InsertOne(ctx, d); err != nil {
		return persistence("insert patient", err)
	}
	*p = d.toModel()
	return nil
}

func (r *patientRepoMongo) GetByID(ctx context.Context, id string) (*Patient, error) {
	oid, err := parseObjectID("id", id)
	if err != nil {
		return nil, err
	}
	return r.decodeOne(r.patients.FindOne(ctx, bson.M{"_id": oid}), "get patient")
}

func (r *patientRepoMongo) Update(ctx context.Context, id string, u *PatientUpdate) (*Patient, error) {
	oid, err := parseObjectID("id", id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updatedAt": mongoNow()}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Address != nil {
		set["address"] = *u.Address
	}
	if u.Mobile != nil {
		set["mobile"] = *u.Mobile
	}
	if u.Disease != nil {
		set["disease"] = *u.Disease
	}
	if u.TotalCost != nil {
		set["totalCost"] = *u.TotalCost
	}
	if u.DateOfVisit != nil {
		set["dateOfVisit"] = *u.DateOfVisit
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return r.decodeOne(r.patients.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts), "update patient")
}

func (r *patientRepoMongo) Delete(ctx context.Context, id string) (*Patient, error) {
	oid, err := parseObjectID("id", id)
	if err != nil {
		return nil, err
	}
	return r.decodeOne(r.patients.FindOneAndDelete(ctx, bson.M{"_id": oid}), "delete patient")
}

var byCreatedDesc = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}

func (r *patientRepoMongo) find(ctx context.Context, opts *options.FindOptions) ([]Patient, error) {
	cur, err := r.patients.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, persistence("list patients", err)
	}
	var docs []patientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistence("list patients", err)
	}
	items := make([]Patient, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

func (r *patientRepoMongo) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	total, err := r.patients.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, persistence("count patients", err)
	}
	opts := options.Find().SetSort(byCreatedDesc).SetSkip(int64(offset)).SetLimit(int64(limit))
	all, err := r.find(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	items := make([]*Patient, 0, len(all))
	for i := range all {
		items = append(items, &all[i])
	}
	return items, int(total), nil
}

func (r *patientRepoMongo) All(ctx context.Context) ([]Patient, error) {
	return r.find(ctx, options.Find().SetSort(byCreatedDesc))
}

func (r *patientRepoMongo) Count(ctx context.Context) (int, error) {
	n, err := r.patients.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, persistence("count patients", err)
	}
	return int(n), nil
}

// Aggregate runs $match, $sort and a $lookup into the payments collection in
// one pipeline.
func (r *patientRepoMongo) Aggregate(ctx context.Context, vr *VisitRange) ([]PatientWithPayments, error) {
	pipeline := mongo.Pipeline{}
	if vr != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.D{
			{Key: "dateOfVisit", Value: bson.D{{Key: "$gte", Value: vr.From}, {Key: "$lt", Value: vr.To}}},
		}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "dateOfVisit", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: PaymentCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "patientId"},
			{Key: "as", Value: "payments"},
		}}},
	)

	cur, err := r.patients.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, persistence("aggregate patients", err)
	}
	var docs []aggregatedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistence("aggregate patients", err)
	}

	items := make([]PatientWithPayments, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}

// =========== Payment Repository ===========

type paymentRepoMongo struct {
	payments *mongo.Collection
}

func NewPaymentRepoMongo(db *mongo.Database) PaymentRepository {
	return &paymentRepoMongo{payments: db.Collection(PaymentCollection)}
}

func (r *paymentRepoMongo) decodeOne(res *mongo.SingleResult, op string) (*Payment, error) {
	var d paymentDoc
	if err := res.Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("payment")
		}
		return nil, persistence(op, err)
	}
	p := d.toModel()
	return &p, nil
}

func (r *paymentRepoMongo) Create(ctx context.Context, p *Payment) error {
	patientID, err := parseObjectID("patientId", p.PatientID)
	if err != nil {
		return err
	}
	now := mongoNow()
	d := paymentDoc{
		ID:        primitive.NewObjectID(),
		PatientID: patientID,
		Amount:    p.Amount,
		Date:      p.Date,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.payments.InsertOne(ctx, d); err != nil {
		return persistence("insert payment", err)
	}
	*p = d.toModel()
	return nil
}

func (r *paymentRepoMongo) GetByID(ctx context.Context, id string) (*Payment, error) {
	oid, err := parseObjectID("id", id)
	if err != nil {
		return nil, err
	}
	return r.decodeOne(r.payments.FindOne(ctx, bson.M{"_id": oid}), "get payment")
}

func (r *paymentRepoMongo) Update(ctx context.Context, id string, amount int64, date time.Time) (*Payment, error) {
	oid, err := parseObjectID("id", id)
	if err != nil {
		return nil, err
	}
	update := bson.M{"$set": bson.M{"amount": amount, "date": date, "updatedAt": mongoNow()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return r.decodeOne(r.payments.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts), "update payment")
}

func (r *paymentRepoMongo) ListByPatient(ctx context.Context, patientID string) ([]Payment, error) {
	oid, err := parseObjectID("patientId", patientID)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.payments.Find(ctx, bson.M{"patientId": oid}, opts)
	if err != nil {
		return nil, persistence("list payments", err)
	}
	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, persistence("list payments", err)
	}
	items := make([]Payment, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toModel())
	}
	return items, nil
}
