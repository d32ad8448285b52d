package fanout

func init() {
	Register(&Profile{
		Name:        "homestead-cache",
		Keyspace:    "homestead_cache",
		Description: "Homestead cache: digests by private id, subscriptions by public id",
		Tables: []TableSpec{
			{
				Name:      "impi",
				RowKey:    FieldPrivateID,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "digest_ha1", Value: FieldDigest},
					{Name: "digest_realm", Value: FieldRealm},
					{Name: "public_id_", NameField: FieldPublicID, Value: FieldNone},
				},
			},
			{
				Name:      "impu",
				RowKey:    FieldPublicID,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "ims_subscription_xml", Value: FieldIMSSubscriptionXML},
				},
			},
		},
	})

	Register(&Profile{
		Name:        "homestead-prov",
		Keyspace:    "homestead_provisioning",
		Description: "Homestead provisioning: registration sets, service profiles, public and private ids",
		Tables: []TableSpec{
			{
				Name:      "implicit_registration_sets",
				RowKey:    FieldIRS,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "service_profile_", NameField: FieldSPText, Value: FieldSP},
					{Name: "associated_private_", NameField: FieldPrivateID, Value: FieldPrivateID},
				},
			},
			{
				Name:      "service_profiles",
				RowKey:    FieldSP,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "irs", Value: FieldIRS},
					{Name: "initialfiltercriteria", Value: FieldIFCXML},
					{Name: "public_id_", NameField: FieldPublicID, Value: FieldPublicID},
				},
			},
			{
				Name:      "public",
				RowKey:    FieldPublicID,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "publicidentity", Value: FieldPublicIdentityXML},
					{Name: "service_profile", Value: FieldSP},
				},
			},
			{
				Name:      "private",
				RowKey:    FieldPrivateID,
				Existence: true,
				Columns: []ColumnRule{
					{Name: "digest_ha1", Value: FieldDigest},
					{Name: "plaintext_password", Value: FieldPlaintextSecret},
					{Name: "realm", Value: FieldRealm},
					{Name: "associated_irs_", NameField: FieldIRSText, Value: FieldIRS},
				},
			},
		},
	})

	Register(&Profile{
		Name:        "homer",
		Keyspace:    "homer",
		Description: "Homer: simservs documents by public id",
		Tables: []TableSpec{
			{
				Name:    "simservs",
				RowKey:  FieldPublicID,
				Columns: []ColumnRule{{Name: "value", Value: FieldSimservs}},
			},
		},
	})

	Register(&Profile{
		Name:        "memento",
		Keyspace:    "memento",
		Description: "Memento: synthetic call lists by public id",
		Tables: []TableSpec{
			{
				Name:     "call_lists",
				RowKey:   FieldPublicID,
				Generate: CallHistory,
			},
		},
	})

	Register(&Profile{
		Name:        "homestead-legacy",
		Keyspace:    "homestead",
		Description: "Pre-cache homestead: digests and filter criteria",
		Tables: []TableSpec{
			{
				Name:    "sip_digests",
				RowKey:  FieldPrivateID,
				Columns: []ColumnRule{{Name: "digest", Value: FieldDigest}},
			},
			{
				Name:    "filter_criteria",
				RowKey:  FieldPublicID,
				Columns: []ColumnRule{{Name: "value", Value: FieldIFCXML}},
			},
		},
	})
}
